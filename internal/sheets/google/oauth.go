package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultTokenFile is where Authorize output is stored when
// GOOGLE_OAUTH_TOKEN_FILE is unset.
const DefaultTokenFile = "token.json"

const authorizeTimeout = 5 * time.Minute

// OAuthConfigFromEnv builds the installed-app OAuth config from
// GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))

	var b []byte
	switch {
	case clientJSON != "":
		b = []byte(clientJSON)
	case clientFile != "":
		var err error
		b, err = os.ReadFile(clientFile)
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
	default:
		return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}

	cfg, err := oauthgoogle.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// TokenFileFromEnv returns GOOGLE_OAUTH_TOKEN_FILE or DefaultTokenFile.
func TokenFileFromEnv() string {
	if f := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); f != "" {
		return f
	}
	return DefaultTokenFile
}

func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return &tok, nil
}

// SaveToken writes tok readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Authorize runs the installed-app consent flow: it prints the consent URL
// to out and waits on localhost:port/callback for the redirect. The OAuth
// client must list http://localhost:<port>/callback as a redirect URI.
func Authorize(ctx context.Context, cfg *oauth2.Config, port string, out io.Writer) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}
	cfg.RedirectURL = "http://localhost:" + port + "/callback"

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "Autorizado. Pode fechar esta janela.")
			codeCh <- q.Get("code")
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Fprintf(out, "Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization: %w", ctx.Err())
	}
}

// oauthTokenSource returns a refreshing token source when a user token has
// been stored with Authorize. ok is false when OAuth is not configured.
func oauthTokenSource(ctx context.Context) (ts oauth2.TokenSource, ok bool, err error) {
	path := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))
	if path == "" {
		return nil, false, nil
	}
	cfg, err := OAuthConfigFromEnv()
	if err != nil {
		return nil, true, err
	}
	tok, err := LoadToken(path)
	if err != nil {
		return nil, true, fmt.Errorf("load oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, tok), true, nil
}
