// Package oauth implements the authorization-code flows completed through
// the insomnia://oauth/<provider>/authenticate deep links. A Flow issues the
// authorization URL with a one-time state value, then exchanges the returned
// code, verifies the token against the provider API and stores it.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/greg-hellings/reqdesk/pkg/state"
)

// Provider identifiers, also used as credential store keys.
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// PendingTTL bounds how long an issued state value stays valid.
const PendingTTL = 10 * time.Minute

// ErrStateMismatch is returned when a code arrives with a state the flow did not issue.
var ErrStateMismatch = errors.New("invalid state parameter: the authorization flow was not initiated by the app")

// Verifier confirms a freshly exchanged token works and reports the account it belongs to.
type Verifier interface {
	Verify(ctx context.Context, tok *oauth2.Token) (account string, err error)
}

type pendingAuth struct {
	codeVerifier string
	issued       time.Time
}

// Flow runs the authorization-code grant for one provider. It is safe for
// concurrent use; each issued state can be redeemed once.
type Flow struct {
	provider string
	cfg      *oauth2.Config
	pkce     bool
	verifier Verifier
	store    state.CredentialStore

	mu      sync.Mutex
	pending map[string]pendingAuth
	now     func() time.Time
}

// NewFlow assembles a flow. Most callers use NewGitHubFlow or NewGitLabFlow.
func NewFlow(provider string, cfg *oauth2.Config, pkce bool, verifier Verifier, store state.CredentialStore) *Flow {
	if store == nil {
		store = state.NewInMemoryCredentialStore()
	}
	return &Flow{
		provider: provider,
		cfg:      cfg,
		pkce:     pkce,
		verifier: verifier,
		store:    store,
		pending:  make(map[string]pendingAuth),
		now:      time.Now,
	}
}

// Provider returns the provider identifier.
func (f *Flow) Provider() string { return f.provider }

// AuthorizeURL returns the URL to open in the browser to start a login.
func (f *Flow) AuthorizeURL() (string, error) {
	if f.cfg.ClientID == "" {
		return "", fmt.Errorf("%s: oauth client id is not configured", f.provider)
	}
	st := uuid.NewString()
	p := pendingAuth{issued: f.now()}
	var opts []oauth2.AuthCodeOption
	if f.pkce {
		p.codeVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(p.codeVerifier))
	}

	f.mu.Lock()
	f.prune()
	f.pending[st] = p
	f.mu.Unlock()

	return f.cfg.AuthCodeURL(st, opts...), nil
}

// Exchange redeems an authorization code delivered by the provider redirect.
func (f *Flow) Exchange(ctx context.Context, code, st string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%s: missing authorization code", f.provider)
	}
	p, ok := f.take(st)
	if !ok {
		return ErrStateMismatch
	}

	var opts []oauth2.AuthCodeOption
	if p.codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(p.codeVerifier))
	}
	tok, err := f.cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return fmt.Errorf("%s: exchange code for token: %w", f.provider, err)
	}

	var account string
	if f.verifier != nil {
		account, err = f.verifier.Verify(ctx, tok)
		if err != nil {
			return fmt.Errorf("%s: verify token: %w", f.provider, err)
		}
	}

	cred := state.Credential{
		Provider:     f.provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Account:      account,
	}
	if err := f.store.SetCredential(cred); err != nil {
		return fmt.Errorf("%s: store token: %w", f.provider, err)
	}
	slog.Info("OAuth token stored",
		"provider", f.provider,
		"account", account,
		"token", state.RedactToken(tok.AccessToken))
	return nil
}

// take removes and returns a pending state; expired entries do not match.
func (f *Flow) take(st string) (pendingAuth, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[st]
	if !ok {
		return pendingAuth{}, false
	}
	delete(f.pending, st)
	if f.now().Sub(p.issued) > PendingTTL {
		return pendingAuth{}, false
	}
	return p, true
}

// prune drops expired states. Callers hold f.mu.
func (f *Flow) prune() {
	now := f.now()
	for k, p := range f.pending {
		if now.Sub(p.issued) > PendingTTL {
			delete(f.pending, k)
		}
	}
}
