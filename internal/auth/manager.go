// Package auth obtains and caches the OAuth credential every process uses
// to reach the remote store.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	serviceName        = "savegem"
	tokenRefreshBuffer = 5 * time.Minute
)

// Manager loads, refreshes and stores credentials
type Manager struct {
	configDir      string
	storage        StorageBackend
	oauthConfig    *oauth2.Config
	storageWarning string
	now            func() time.Time
}

// ManagerOptions selects the storage backend
type ManagerOptions struct {
	ForceEncryptedFile bool
	// ForcePlainFile stores credentials unencrypted
	ForcePlainFile bool
	// Storage overrides the backend selection entirely
	Storage StorageBackend
}

func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{configDir: configDir, now: time.Now}

	switch {
	case opts.Storage != nil:
		mgr.storage = opts.Storage
	case opts.ForcePlainFile:
		mgr.storage = NewPlainFileStorage(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Credentials are stored in plain text."
	case opts.ForceEncryptedFile || !keyringAvailable(serviceName):
		storage, err := NewEncryptedFileStorage(configDir)
		if err != nil {
			mgr.storage = NewPlainFileStorage(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
			break
		}
		mgr.storage = storage
		if !opts.ForceEncryptedFile {
			mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
		}
	default:
		mgr.storage = NewKeyringStorage(serviceName)
	}
	return mgr
}

// SetOAuthConfig sets the OAuth client used for login and refresh
func (m *Manager) SetOAuthConfig(clientID, clientSecret string, scopes []string) {
	m.oauthConfig = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}

func (m *Manager) OAuthConfig() *oauth2.Config {
	return m.oauthConfig
}

// LoadCredentials returns the cached credential of profile
func (m *Manager) LoadCredentials(profile string) (*types.Credentials, error) {
	data, err := m.storage.Load(profile)
	if err != nil {
		return nil, err
	}

	var stored types.StoredCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	expiry, err := time.Parse(time.RFC3339, stored.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry date: %w", err)
	}

	return &types.Credentials{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		ExpiryDate:   expiry,
		Scopes:       stored.Scopes,
		Type:         stored.Type,
	}, nil
}

// SaveCredentials replaces the cached credential of profile
func (m *Manager) SaveCredentials(profile string, creds *types.Credentials) error {
	data, err := json.Marshal(types.StoredCredentials{
		Profile:      profile,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiryDate:   creds.ExpiryDate.Format(time.RFC3339),
		Scopes:       creds.Scopes,
		Type:         creds.Type,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return m.storage.Save(profile, data)
}

// DeleteCredentials drops the cached credential so the next start has to
// log in again. Deleting a missing credential is not an error.
func (m *Manager) DeleteCredentials(profile string) error {
	return m.storage.Delete(profile)
}

// IsAuthenticated reports whether profile has a cached credential. The
// daemons poll this for their authentication gate.
func (m *Manager) IsAuthenticated(profile string) bool {
	creds, err := m.LoadCredentials(profile)
	return err == nil && (creds.RefreshToken != "" || m.now().Before(creds.ExpiryDate))
}

func (m *Manager) NeedsRefresh(creds *types.Credentials) bool {
	return m.now().Add(tokenRefreshBuffer).After(creds.ExpiryDate)
}

// RefreshCredentials exchanges the refresh token for a new access token
func (m *Manager) RefreshCredentials(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}

	token, err := m.oauthConfig.TokenSource(ctx, tokenOf(creds)).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	refresh := token.RefreshToken
	if refresh == "" {
		refresh = creds.RefreshToken
	}
	return &types.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: refresh,
		ExpiryDate:   token.Expiry,
		Scopes:       creds.Scopes,
		Type:         types.AuthTypeOAuth,
	}, nil
}

// GetValidCredentials returns credentials that are valid for at least a few
// more minutes, refreshing and storing them when needed
func (m *Manager) GetValidCredentials(ctx context.Context, profile string) (*types.Credentials, error) {
	creds, err := m.LoadCredentials(profile)
	if err != nil {
		msg := "No credentials found. Run 'savegem auth login' first."
		if !errors.Is(err, ErrNoCredentials) {
			msg = fmt.Sprintf("Cached credentials are unreadable (%v). Run 'savegem auth login'.", err)
		}
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired, msg).
			WithContext("profile", profile).Build(), err)
	}

	if !m.NeedsRefresh(creds) {
		return creds, nil
	}

	refreshed, err := m.RefreshCredentials(ctx, creds)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			"Token refresh failed. Run 'savegem auth login' to re-authenticate.").
			WithContext("profile", profile).Build(), err)
	}
	if err := m.SaveCredentials(profile, refreshed); err != nil {
		return nil, fmt.Errorf("failed to save refreshed credentials: %w", err)
	}
	return refreshed, nil
}

// TokenSource yields the cached access token of profile, refreshing it
// through the manager. It does not require credentials to exist yet.
func (m *Manager) TokenSource(ctx context.Context, profile string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, profileTokenSource{ctx: ctx, mgr: m, profile: profile})
}

// HTTPClient returns a client that authorizes requests as profile. A base
// transport can be supplied through the oauth2.HTTPClient context value.
func (m *Manager) HTTPClient(ctx context.Context, profile string) *http.Client {
	return oauth2.NewClient(ctx, m.TokenSource(ctx, profile))
}

type profileTokenSource struct {
	ctx     context.Context
	mgr     *Manager
	profile string
}

func (s profileTokenSource) Token() (*oauth2.Token, error) {
	creds, err := s.mgr.GetValidCredentials(s.ctx, s.profile)
	if err != nil {
		return nil, err
	}
	return tokenOf(creds), nil
}

// ValidateScopes fails when creds lack any of required
func (m *Manager) ValidateScopes(creds *types.Credentials, required []string) error {
	granted := make(map[string]bool, len(creds.Scopes))
	for _, s := range creds.Scopes {
		granted[s] = true
	}
	if granted[utils.ScopeFull] {
		return nil
	}
	for _, req := range required {
		if !granted[req] {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("Missing required scope: %s. Run 'savegem auth login' again.", req)).Build())
		}
	}
	return nil
}

func (m *Manager) ConfigDir() string {
	return m.configDir
}

func (m *Manager) StorageBackend() string {
	return m.storage.Name()
}

func (m *Manager) StorageWarning() string {
	return m.storageWarning
}

func tokenOf(creds *types.Credentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiryDate,
	}
}
