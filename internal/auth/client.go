package auth

// Set with -ldflags "-X github.com/dl-alexandre/savegem/internal/auth.bundledClientID=..."
var (
	bundledClientID     string
	bundledClientSecret string
)

// ClientCredentials identifies the OAuth client used for the Drive consent flow
type ClientCredentials struct {
	ID     string
	Secret string
	// Source is "env" or "bundled"
	Source string
}

// ResolveClient prefers <prefix>CLIENT_ID/<prefix>CLIENT_SECRET from lookup
// over the client compiled into the binary. Both halves must be present.
func ResolveClient(lookup func(string) string, prefix string) (ClientCredentials, bool) {
	id, secret := lookup(prefix+"CLIENT_ID"), lookup(prefix+"CLIENT_SECRET")
	if id != "" && secret != "" {
		return ClientCredentials{ID: id, Secret: secret, Source: "env"}, true
	}
	if bundledClientID != "" {
		return ClientCredentials{ID: bundledClientID, Secret: bundledClientSecret, Source: "bundled"}, true
	}
	return ClientCredentials{}, false
}
