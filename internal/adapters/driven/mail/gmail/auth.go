package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// TokenStore keeps one OAuth token file per account.
type TokenStore struct {
	dir string
}

// NewTokenStore creates a token store rooted at dir.
func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

// Load reads the account's token. A missing file returns
// domain.ErrAuthRequired.
func (s *TokenStore) Load(account string) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path(account))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no token for %s", domain.ErrAuthRequired, account)
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &tok, nil
}

// Save writes the account's token with owner-only permissions.
func (s *TokenStore) Save(account string, tok *oauth2.Token) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.WriteFile(s.path(account), data, 0600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	return nil
}

// Delete removes the account's token.
func (s *TokenStore) Delete(account string) error {
	err := os.Remove(s.path(account))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token: %w", err)
	}
	return nil
}

func (s *TokenStore) path(account string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, account)
	return filepath.Join(s.dir, name+".json")
}

// Authenticator runs the OAuth consent flow and builds Gmail clients.
type Authenticator struct {
	config *oauth2.Config
	tokens *TokenStore
}

// NewAuthenticator loads OAuth client credentials downloaded from the
// Google Cloud console.
func NewAuthenticator(credentialsPath string, tokens *TokenStore) (*Authenticator, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading credentials %s: %v", domain.ErrAuthRequired, credentialsPath, err)
	}
	return NewAuthenticatorFromJSON(data, tokens)
}

// NewAuthenticatorFromJSON builds an authenticator from credentials JSON.
func NewAuthenticatorFromJSON(credentials []byte, tokens *TokenStore) (*Authenticator, error) {
	cfg, err := google.ConfigFromJSON(credentials, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	return &Authenticator{config: cfg, tokens: tokens}, nil
}

// AuthCodeURL returns the consent page URL using PKCE.
func (a *Authenticator) AuthCodeURL(state, redirectURI, verifier string) string {
	cfg := *a.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for a token and stores it.
func (a *Authenticator) Exchange(ctx context.Context, account, code, redirectURI, verifier string) error {
	cfg := *a.config
	cfg.RedirectURL = redirectURI
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	return a.tokens.Save(account, tok)
}

// Service builds a Gmail client for the account. Refreshed tokens are
// written back to the token store.
func (a *Authenticator) Service(ctx context.Context, account string) (*gmail.Service, error) {
	tok, err := a.tokens.Load(account)
	if err != nil {
		return nil, err
	}
	ts := &persistingSource{
		base:    a.config.TokenSource(ctx, tok),
		store:   a.tokens,
		account: account,
		last:    tok.AccessToken,
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(tok, ts)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return svc, nil
}

// persistingSource saves every newly refreshed token.
type persistingSource struct {
	mu      sync.Mutex
	base    oauth2.TokenSource
	store   *TokenStore
	account string
	last    string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("%w: refreshing token: %v", domain.ErrAuthRequired, err)
		}
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.store.Save(p.account, tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}
