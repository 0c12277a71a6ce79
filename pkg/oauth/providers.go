package oauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/oauth2"
	githubendpoint "golang.org/x/oauth2/github"
	gitlabendpoint "golang.org/x/oauth2/gitlab"

	"github.com/greg-hellings/reqdesk/pkg/config"
	"github.com/greg-hellings/reqdesk/pkg/state"
)

// GitHubUsersService abstracts the user lookup used to verify tokens.
type GitHubUsersService interface {
	Get(ctx context.Context, user string) (*github.User, *github.Response, error)
}

// GitLabUsersService abstracts the current-user lookup used to verify tokens.
type GitLabUsersService interface {
	CurrentUser(options ...gitlab.RequestOptionFunc) (*gitlab.User, *gitlab.Response, error)
}

// GitHubVerifier checks tokens with GET /user.
type GitHubVerifier struct {
	users func(token string) (GitHubUsersService, error)
}

// NewGitHubVerifier verifies against apiURL; empty means api.github.com.
func NewGitHubVerifier(apiURL string) *GitHubVerifier {
	return &GitHubVerifier{users: func(token string) (GitHubUsersService, error) {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client := github.NewClient(oauth2.NewClient(context.Background(), ts))
		if apiURL != "" {
			var err error
			client, err = client.WithEnterpriseURLs(apiURL, apiURL)
			if err != nil {
				return nil, fmt.Errorf("failed to set GitHub Enterprise URL: %w", err)
			}
		}
		return client.Users, nil
	}}
}

// Verify implements Verifier.
func (v *GitHubVerifier) Verify(ctx context.Context, tok *oauth2.Token) (string, error) {
	users, err := v.users(tok.AccessToken)
	if err != nil {
		return "", err
	}
	u, _, err := users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get authenticated user from GitHub: %w", err)
	}
	return u.GetLogin(), nil
}

// GitLabVerifier checks tokens with GET /user.
type GitLabVerifier struct {
	users func(token string) (GitLabUsersService, error)
}

// NewGitLabVerifier verifies against the instance at baseURL.
func NewGitLabVerifier(baseURL string) *GitLabVerifier {
	return &GitLabVerifier{users: func(token string) (GitLabUsersService, error) {
		var opts []gitlab.ClientOptionFunc
		if baseURL != "" {
			opts = append(opts, gitlab.WithBaseURL(baseURL))
		}
		client, err := gitlab.NewOAuthClient(token, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitLab client: %w", err)
		}
		return client.Users, nil
	}}
}

// Verify implements Verifier.
func (v *GitLabVerifier) Verify(ctx context.Context, tok *oauth2.Token) (string, error) {
	users, err := v.users(tok.AccessToken)
	if err != nil {
		return "", err
	}
	u, _, err := users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to get current user from GitLab: %w", err)
	}
	return u.Username, nil
}

// NewGitHubFlow builds the GitHub flow from configuration.
func NewGitHubFlow(c config.ProviderOAuth, store state.CredentialStore) *Flow {
	endpoint := githubendpoint.Endpoint
	apiURL := c.APIURL
	if base := strings.TrimRight(c.BaseURL, "/"); base != "" && base != config.DefaultGitHubURL {
		endpoint = oauth2.Endpoint{
			AuthURL:  base + "/login/oauth/authorize",
			TokenURL: base + "/login/oauth/access_token",
		}
		if apiURL == "" {
			apiURL = base
		}
	}
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
	}
	return NewFlow(ProviderGitHub, cfg, false, NewGitHubVerifier(apiURL), store)
}

// NewGitLabFlow builds the GitLab flow (with PKCE) from configuration.
func NewGitLabFlow(c config.ProviderOAuth, store state.CredentialStore) *Flow {
	endpoint := gitlabendpoint.Endpoint
	base := strings.TrimRight(c.BaseURL, "/")
	if base != "" && base != config.DefaultGitLabURL {
		endpoint = oauth2.Endpoint{
			AuthURL:  base + "/oauth/authorize",
			TokenURL: base + "/oauth/token",
		}
	}
	apiURL := c.APIURL
	if apiURL == "" {
		apiURL = base
	}
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
	}
	return NewFlow(ProviderGitLab, cfg, true, NewGitLabVerifier(apiURL), store)
}
