package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dl-alexandre/savegem/internal/types"
	"golang.org/x/oauth2"
)

const loginTimeout = 5 * time.Minute

// LoginOptions controls how Login talks to the user
type LoginOptions struct {
	// NoBrowser skips the loopback listener and asks for the code on In
	NoBrowser bool
	In        io.Reader
	Out       io.Writer
	Timeout   time.Duration
}

// loginFlow is one PKCE authorization attempt against a loopback redirect
type loginFlow struct {
	config   *oauth2.Config
	listener net.Listener
	state    string
	verifier string
	codes    chan string
	errs     chan error
}

func newLoginFlow(config *oauth2.Config, listener net.Listener, redirectURL string) (*loginFlow, error) {
	if config == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("redirect URL not set")
	}

	state, err := randomToken(base64.URLEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	verifier, err := randomToken(base64.RawURLEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	cfg := *config
	cfg.RedirectURL = redirectURL
	return &loginFlow{
		config:   &cfg,
		listener: listener,
		state:    state,
		verifier: verifier,
		codes:    make(chan string, 1),
		errs:     make(chan error, 1),
	}, nil
}

// listenLoopback binds an ephemeral localhost port for the redirect
func listenLoopback(config *oauth2.Config) (*loginFlow, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	flow, err := newLoginFlow(config, listener, fmt.Sprintf("http://127.0.0.1:%d/callback", port))
	if err != nil {
		listener.Close()
		return nil, err
	}
	return flow, nil
}

// manualFlow has no listener. The browser lands on a dead localhost page
// and the user copies the code from the address bar.
func manualFlow(config *oauth2.Config) (*loginFlow, error) {
	port := 8765
	if l, err := net.Listen("tcp", "127.0.0.1:0"); err == nil {
		port = l.Addr().(*net.TCPAddr).Port
		l.Close()
	}
	return newLoginFlow(config, nil, fmt.Sprintf("http://127.0.0.1:%d/callback", port))
}

func (f *loginFlow) authURL() string {
	return f.config.AuthCodeURL(
		f.state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge(f.verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (f *loginFlow) serve(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", f.callback)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(f.listener); err != http.ErrServerClosed {
			f.fail(err)
		}
	}()
	go func() {
		<-ctx.Done()
		server.Close()
	}()
}

func (f *loginFlow) fail(err error) {
	select {
	case f.errs <- err:
	default:
	}
}

func (f *loginFlow) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != f.state {
		f.fail(fmt.Errorf("invalid state parameter"))
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		f.fail(fmt.Errorf("auth error: %s", q.Get("error")))
		http.Error(w, "No code received", http.StatusBadRequest)
		return
	}

	select {
	case f.codes <- code:
	default:
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body><h1>SaveGem is signed in</h1><p>You can close this window.</p></body></html>`)
}

func (f *loginFlow) wait(ctx context.Context, timeout time.Duration) (string, error) {
	select {
	case code := <-f.codes:
		return code, nil
	case err := <-f.errs:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(timeout):
		return "", fmt.Errorf("authentication timed out")
	}
}

func (f *loginFlow) exchange(ctx context.Context, code string) (*types.Credentials, error) {
	token, err := f.config.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", f.verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return &types.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiryDate:   token.Expiry,
		Scopes:       f.config.Scopes,
		Type:         types.AuthTypeOAuth,
	}, nil
}

func (f *loginFlow) close() {
	if f.listener != nil {
		f.listener.Close()
	}
}

// Login runs the OAuth consent flow and caches the resulting credential for
// profile
func (m *Manager) Login(ctx context.Context, profile string, openBrowser func(string) error, opts LoginOptions) (*types.Credentials, error) {
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Timeout <= 0 {
		opts.Timeout = loginTimeout
	}

	var code string
	var flow *loginFlow
	var err error

	if !opts.NoBrowser && !headless() {
		flow, err = listenLoopback(m.oauthConfig)
		if err == nil {
			defer flow.close()
			flowCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			flow.serve(flowCtx)

			url := flow.authURL()
			fmt.Fprintf(opts.Out, "Opening browser for authentication...\nIf the browser doesn't open, visit: %s\n", url)
			if openErr := openBrowser(url); openErr != nil {
				fmt.Fprintf(opts.Out, "Failed to open browser: %v\n", openErr)
				flow = nil
			} else if code, err = flow.wait(ctx, opts.Timeout); err != nil {
				return nil, err
			}
		} else {
			flow = nil
		}
	}

	if flow == nil {
		flow, err = manualFlow(m.oauthConfig)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(opts.Out, "Open this URL in a browser and approve access:\n%s\n", flow.authURL())
		fmt.Fprint(opts.Out, "Paste the `code` parameter of the localhost URL you are redirected to: ")
		if code, err = readCode(opts.In); err != nil {
			return nil, err
		}
	}

	creds, err := flow.exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := m.SaveCredentials(profile, creds); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return creds, nil
}

func readCode(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", fmt.Errorf("no authorization code entered")
	}
	return code, nil
}

func randomToken(enc *base64.Encoding) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return enc.EncodeToString(b), nil
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func headless() bool {
	for _, key := range []string{"SAVEGEM_NO_BROWSER", "CI", "SSH_CONNECTION", "SSH_TTY"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}
