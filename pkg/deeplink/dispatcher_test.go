package deeplink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/greg-hellings/reqdesk/pkg/plugins"
)

// recorder implements every port and records each call in order.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	confirm bool

	confirmations []Confirmation
	errors        []ErrorNotice
	logins        []LoginPrompt
	created       []plugins.Package

	installErr  error
	exchangeErr error
	reloadErr   error
}

func (r *recorder) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) Alert(_ context.Context, title, message string) error {
	r.record("alert %s|%s", title, message)
	return nil
}

func (r *recorder) Login(_ context.Context, p LoginPrompt) error {
	r.logins = append(r.logins, p)
	r.record("login")
	return nil
}

func (r *recorder) Confirm(_ context.Context, c Confirmation) (bool, error) {
	r.confirmations = append(r.confirmations, c)
	r.record("confirm %s", c.Title)
	return r.confirm, nil
}

func (r *recorder) Error(_ context.Context, n ErrorNotice) error {
	r.errors = append(r.errors, n)
	r.record("error %s", n.Title)
	return nil
}

func (r *recorder) Settings(_ context.Context, tab SettingsTab) error {
	r.record("settings %s", tab)
	return nil
}

func (r *recorder) SetPendingImport(uri string) { r.record("import %s", uri) }

func (r *recorder) Install(_ context.Context, name string) error {
	r.record("install %s", name)
	return r.installErr
}

func (r *recorder) Create(_ context.Context, p plugins.Package) error {
	r.created = append(r.created, p)
	r.record("create %s@%s", p.Name, p.Version)
	return nil
}

func (r *recorder) Reload(context.Context) error {
	r.record("reload")
	return r.reloadErr
}

func (r *recorder) ApplyTheme(_ context.Context, name string) error {
	r.record("theme %s", name)
	return nil
}

func (r *recorder) SubmitAuthCode(box string) { r.record("finish %s", box) }

type exchanger struct {
	r        *recorder
	provider string
}

func (e exchanger) Exchange(_ context.Context, code, state string) error {
	e.r.record("exchange %s %s %s", e.provider, code, state)
	return e.r.exchangeErr
}

func newTestDispatcher(r *recorder) *Dispatcher {
	return New(Options{
		Dialogs:   r,
		Imports:   r,
		Plugins:   r,
		Themes:    r,
		GitHub:    exchanger{r, "github"},
		GitLab:    exchanger{r, "gitlab"},
		AuthCodes: r,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("calls:\n got %q\nwant %q", got, want)
	}
}

func TestDispatchRoutes(t *testing.T) {
	tests := []struct {
		name    string
		link    string
		confirm bool
		want    []string
	}{
		{"alert", "insomnia://app/alert?title=T&message=M", false, []string{"alert T|M"}},
		{"alert keeps semicolons and bare percents", "insomnia://app/alert?title=a;b&message=100%", false, []string{"alert a;b|100%"}},
		{"login", "insomnia://app/auth/login?title=Session&message=Expired", false, []string{"login"}},
		{"import", "insomnia://app/import?uri=https%3A%2F%2Fexample.com%2Fa.yaml", false, []string{"import https://example.com/a.yaml"}},
		{"plugin install confirmed", "insomnia://plugins/install?name=insomnia-plugin-foo", true,
			[]string{"confirm Plugin Install", "install insomnia-plugin-foo", "settings plugins"}},
		{"plugin install cancelled", "insomnia://plugins/install?name=insomnia-plugin-foo", false,
			[]string{"confirm Plugin Install"}},
		{"github oauth", "insomnia://oauth/github/authenticate?code=c1&state=s1", false, []string{"exchange github c1 s1"}},
		{"gitlab oauth", "insomnia://oauth/gitlab/authenticate?code=c2&state=s2", false, []string{"exchange gitlab c2 s2"}},
		{"auth finish", "insomnia://app/auth/finish?box=abc", false, []string{"finish abc"}},
		{"unknown", "insomnia://app/nope?x=1", true, nil},
		{"malformed", "not a url", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{confirm: tt.confirm}
			if err := newTestDispatcher(r).Dispatch(context.Background(), tt.link); err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			assertCalls(t, r.calls, tt.want)
		})
	}
}

func TestDispatchLoginIsReauth(t *testing.T) {
	r := &recorder{}
	if err := newTestDispatcher(r).Dispatch(context.Background(), "insomnia://app/auth/login?title=T&message=M"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(r.logins) != 1 {
		t.Fatalf("logins = %v", r.logins)
	}
	if got := r.logins[0]; got != (LoginPrompt{Title: "T", Message: "M", Reauth: true}) {
		t.Errorf("login = %+v", got)
	}
}

func TestDispatchPluginInstallFailure(t *testing.T) {
	r := &recorder{confirm: true, installErr: errors.New("registry said no")}
	if err := newTestDispatcher(r).Dispatch(context.Background(), "insomnia://plugins/install?name=foo"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	assertCalls(t, r.calls, []string{"confirm Plugin Install", "install foo", "error Plugin Install"})
	if len(r.confirmations) != 1 || r.confirmations[0].Message != "Do you want to install foo?" {
		t.Errorf("confirmation = %+v", r.confirmations)
	}
	n := r.errors[0]
	if n.Message != "Failed to install plugin" || !errors.Is(n.Err, r.installErr) {
		t.Errorf("error notice = %+v", n)
	}
}

func TestDispatchOAuthFailure(t *testing.T) {
	for _, tt := range []struct {
		link, title string
	}{
		{"insomnia://oauth/github/authenticate?code=c&state=s", "Error authorizing GitHub"},
		{"insomnia://oauth/gitlab/authenticate?code=c&state=s", "Error authorizing GitLab"},
	} {
		t.Run(tt.title, func(t *testing.T) {
			r := &recorder{exchangeErr: errors.New("state mismatch")}
			if err := newTestDispatcher(r).Dispatch(context.Background(), tt.link); err != nil {
				t.Fatalf("Dispatch should swallow OAuth errors, got %v", err)
			}
			if len(r.errors) != 1 {
				t.Fatalf("errors = %v", r.errors)
			}
			if r.errors[0].Title != tt.title || r.errors[0].Message != "state mismatch" {
				t.Errorf("error notice = %+v", r.errors[0])
			}
		})
	}
}

const testTheme = `{"name":"dracula","displayName":"Dracula","theme":{"background":{"default":"#282a36"}}}`

func themeLink(raw string) string {
	// The theme value is encoded twice: once by the sender, once as a query value.
	return "insomnia://plugins/theme?theme=" + url.QueryEscape(url.PathEscape(raw))
}

func TestDispatchThemeInstall(t *testing.T) {
	r := &recorder{confirm: true}
	if err := newTestDispatcher(r).Dispatch(context.Background(), themeLink(testTheme)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	assertCalls(t, r.calls, []string{
		"confirm Install Theme",
		"create theme-dracula@0.0.1",
		"reload",
		"theme dracula",
		"settings themes",
	})
	if got := r.confirmations[0].Message; got != "Do you want to install Dracula?" {
		t.Errorf("confirm message = %q", got)
	}
	wantJS := "module.exports.themes = [{\n" +
		"  \"name\": \"dracula\",\n" +
		"  \"displayName\": \"Dracula\",\n" +
		"  \"theme\": {\n" +
		"    \"background\": {\n" +
		"      \"default\": \"#282a36\"\n" +
		"    }\n" +
		"  }\n" +
		"}];"
	if got := r.created[0].MainJS; got != wantJS {
		t.Errorf("main.js =\n%s\nwant\n%s", got, wantJS)
	}
}

func TestDispatchThemeCancelled(t *testing.T) {
	r := &recorder{confirm: false}
	if err := newTestDispatcher(r).Dispatch(context.Background(), themeLink(testTheme)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	assertCalls(t, r.calls, []string{"confirm Install Theme"})
}

func TestDispatchThemeErrors(t *testing.T) {
	tests := []struct {
		name    string
		link    string
		wantErr error
	}{
		{"malformed json", themeLink(`{"name":`), ErrMalformedTheme},
		{"missing name", themeLink(`{"displayName":"X"}`), ErrMalformedTheme},
		{"bad percent encoding", "insomnia://plugins/theme?theme=%25zz", ErrMalformedTheme},
		{"missing param", "insomnia://plugins/theme", ErrMalformedTheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{confirm: true}
			err := newTestDispatcher(r).Dispatch(context.Background(), tt.link)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			assertCalls(t, r.calls, nil)
		})
	}

	t.Run("reload failure propagates", func(t *testing.T) {
		r := &recorder{confirm: true, reloadErr: errors.New("disk gone")}
		err := newTestDispatcher(r).Dispatch(context.Background(), themeLink(testTheme))
		if err == nil || !strings.Contains(err.Error(), "disk gone") {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestDispatchDevelopmentScheme(t *testing.T) {
	r := &recorder{}
	d := New(Options{
		Parse:   ParseOptions{Development: true},
		Dialogs: r,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := d.Dispatch(context.Background(), "insomniadev://app/alert?title=T&message=M"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	assertCalls(t, r.calls, []string{"alert T|M"})
}

func TestDispatchMissingPorts(t *testing.T) {
	d := New(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	for _, r := range Routes() {
		link := "insomnia://" + r.String() + "?name=x&theme=%7B%7D&code=c&state=s&box=b"
		if err := d.Dispatch(context.Background(), link); err != nil {
			t.Errorf("Dispatch(%s) with no ports: %v", r, err)
		}
	}
}

func TestDispatchConcurrent(t *testing.T) {
	r := &recorder{}
	d := newTestDispatcher(r)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), fmt.Sprintf("insomnia://app/import?uri=u%d", i))
		}(i)
	}
	wg.Wait()
	if len(r.calls) != 20 {
		t.Errorf("got %d calls, want 20", len(r.calls))
	}
}
