package fetch

import (
	"encoding/base64"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/greg-hellings/reqdesk/pkg/importer"
)

const chromeSnippet = `fetch("https://api.example.com/v1/items/?page=2&sort=name&tag=a&tag=b", {
  "headers": {
    "accept": "application/json",
    "authorization": "Basic dXNlcjpwYXNz",
    "x-trace": "abc"
  },
  "referrer": "https://example.com/",
  "body": "{\"q\":1}",
  "method": "POST",
  "mode": "cors"
});`

func convertOne(t *testing.T, raw string) *importer.Request {
	t.Helper()
	reqs, err := New().Convert(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	return reqs[0]
}

func TestConvert_BearerSingleLine(t *testing.T) {
	req := convertOne(t, `fetch("https://api.example.com/x?a=1", {"method":"GET","headers":{"authorization":"Bearer tok123"},"body":null});`)

	if req.URL != "https://api.example.com/x" {
		t.Errorf("unexpected url %q", req.URL)
	}
	if req.Name != req.URL {
		t.Errorf("name should default to url, got %q", req.Name)
	}
	wantParams := []importer.Parameter{{Name: "a", Value: "1", Disabled: false}}
	if !reflect.DeepEqual(req.Parameters, wantParams) {
		t.Errorf("unexpected parameters %+v", req.Parameters)
	}
	if len(req.Headers) != 0 {
		t.Errorf("authorization header should be removed, got %+v", req.Headers)
	}
	want := importer.Authentication{Type: importer.AuthBearer, Token: "tok123"}
	if !reflect.DeepEqual(req.Authentication, want) {
		t.Errorf("unexpected authentication %+v", req.Authentication)
	}
	if req.Method != "GET" {
		t.Errorf("unexpected method %q", req.Method)
	}
	if string(req.Body) != "null" {
		t.Errorf("body should pass through, got %s", req.Body)
	}
	if req.ID != importer.RequestIDPlaceholder || req.ParentID != importer.WorkspaceIDPlaceholder || req.Type != "request" {
		t.Errorf("unexpected placeholders: %q %q %q", req.ID, req.ParentID, req.Type)
	}

	out, err := json.Marshal(req.Authentication)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"type":"bearer","disabled":false,"token":"tok123","prefix":""}` {
		t.Errorf("unexpected authentication JSON %s", out)
	}
}

func TestConvert_ChromeMultiLine(t *testing.T) {
	req := convertOne(t, chromeSnippet)

	if req.URL != "https://api.example.com/v1/items" {
		t.Errorf("expected trailing slash and query stripped, got %q", req.URL)
	}
	wantParams := []importer.Parameter{
		{Name: "page", Value: "2"},
		{Name: "sort", Value: "name"},
		{Name: "tag", Value: "a"},
		{Name: "tag", Value: "b"},
	}
	if !reflect.DeepEqual(req.Parameters, wantParams) {
		t.Errorf("unexpected parameters %+v", req.Parameters)
	}
	wantHeaders := []importer.Header{
		{Name: "accept", Value: "application/json"},
		{Name: "x-trace", Value: "abc"},
	}
	if !reflect.DeepEqual(req.Headers, wantHeaders) {
		t.Errorf("unexpected headers %+v", req.Headers)
	}
	if req.Authentication.Type != importer.AuthBasic || req.Authentication.Username != "user" {
		t.Fatalf("unexpected authentication %+v", req.Authentication)
	}
	if req.Authentication.Password == nil || *req.Authentication.Password != "pass" {
		t.Errorf("unexpected password %v", req.Authentication.Password)
	}
	if req.Method != "POST" {
		t.Errorf("unexpected method %q", req.Method)
	}
	if string(req.Body) != `"{\"q\":1}"` {
		t.Errorf("unexpected body %s", req.Body)
	}
}

func TestConvert_NotAFetchSnippet(t *testing.T) {
	inputs := []string{
		`{"method":"GET","url":"https://example.com"}`,
		`axios("https://example.com", {"method":"GET"});`,
		`curl https://example.com`,
		`fetch('https://example.com', {"method":"GET"});`,
		``,
	}
	for _, in := range inputs {
		reqs, err := New().Convert(in)
		if err != nil {
			t.Errorf("Convert(%q) returned error %v", in, err)
		}
		if reqs != nil {
			t.Errorf("Convert(%q) should return nil, got %+v", in, reqs)
		}
	}
}

func TestConvert_InvalidURLFallsBack(t *testing.T) {
	req := convertOne(t, `fetch("not a url", {"headers":{"accept":"*/*"},"method":"DELETE","body":null});`)
	if req.URL != "" {
		t.Errorf("expected empty url, got %q", req.URL)
	}
	if req.Name != DefaultName {
		t.Errorf("expected fallback name, got %q", req.Name)
	}
	if len(req.Parameters) != 0 {
		t.Errorf("expected no parameters, got %+v", req.Parameters)
	}
	if req.Method != "DELETE" || len(req.Headers) != 1 {
		t.Errorf("options should still be imported: %+v", req)
	}
}

func TestConvert_InvalidOptionsJSON(t *testing.T) {
	_, err := New().Convert(`fetch("https://example.com", {"method": GET});`)
	if err == nil {
		t.Fatal("expected error for malformed options")
	}
}

func TestImportAuthentication(t *testing.T) {
	pass := func(s string) *string { return &s }
	b64 := base64.StdEncoding.EncodeToString

	tests := []struct {
		name        string
		headers     []importer.Header
		wantHeaders []importer.Header
		wantAuth    importer.Authentication
	}{
		{
			name:        "no authorization header",
			headers:     []importer.Header{{Name: "accept", Value: "*/*"}},
			wantHeaders: []importer.Header{{Name: "accept", Value: "*/*"}},
			wantAuth:    importer.Authentication{},
		},
		{
			name:        "header match is case-sensitive",
			headers:     []importer.Header{{Name: "Authorization", Value: "Bearer x"}},
			wantHeaders: []importer.Header{{Name: "Authorization", Value: "Bearer x"}},
			wantAuth:    importer.Authentication{},
		},
		{
			name:        "unrecognized scheme still removed",
			headers:     []importer.Header{{Name: "authorization", Value: "Digest abc"}, {Name: "accept", Value: "*/*"}},
			wantHeaders: []importer.Header{{Name: "accept", Value: "*/*"}},
			wantAuth:    importer.Authentication{},
		},
		{
			name:        "scheme without credentials",
			headers:     []importer.Header{{Name: "authorization", Value: "Bearer"}},
			wantHeaders: []importer.Header{},
			wantAuth:    importer.Authentication{},
		},
		{
			name:        "bearer with extra whitespace",
			headers:     []importer.Header{{Name: "authorization", Value: "Bearer   tok"}},
			wantHeaders: []importer.Header{},
			wantAuth:    importer.Bearer("tok"),
		},
		{
			name:        "basic password with colons",
			headers:     []importer.Header{{Name: "authorization", Value: "Basic " + b64([]byte("user:pa:ss"))}},
			wantHeaders: []importer.Header{},
			wantAuth:    importer.Basic("user", pass("pa:ss")),
		},
		{
			name:        "basic without colon",
			headers:     []importer.Header{{Name: "authorization", Value: "Basic " + b64([]byte("onlyuser"))}},
			wantHeaders: []importer.Header{},
			wantAuth:    importer.Basic("onlyuser", nil),
		},
		{
			name:        "basic without padding",
			headers:     []importer.Header{{Name: "authorization", Value: "Basic dXNlcjpwYXNzMQ"}},
			wantHeaders: []importer.Header{},
			wantAuth:    importer.Basic("user", pass("pass1")),
		},
		{
			name: "only first authorization header removed",
			headers: []importer.Header{
				{Name: "authorization", Value: "Bearer first"},
				{Name: "authorization", Value: "Bearer second"},
			},
			wantHeaders: []importer.Header{{Name: "authorization", Value: "Bearer second"}},
			wantAuth:    importer.Bearer("first"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := append([]importer.Header(nil), tt.headers...)
			headers, auth := importAuthentication(tt.headers)
			if !reflect.DeepEqual(headers, tt.wantHeaders) {
				t.Errorf("headers = %+v, want %+v", headers, tt.wantHeaders)
			}
			if !reflect.DeepEqual(auth, tt.wantAuth) {
				t.Errorf("auth = %+v, want %+v", auth, tt.wantAuth)
			}
			if !reflect.DeepEqual(tt.headers, original) {
				t.Error("input headers must not be modified")
			}
		})
	}
}

func TestConvert_Idempotent(t *testing.T) {
	first, err := New().Convert(chromeSnippet)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := New().Convert(chromeSnippet)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first[0], again[0])
		}
	}
}

func TestParseQuery(t *testing.T) {
	got := parseQuery("a=1&&b=hello+world&c&d=%zz&e=%2F")
	want := []importer.Parameter{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "hello world"},
		{Name: "c", Value: ""},
		{Name: "d", Value: "%zz"},
		{Name: "e", Value: "/"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseQuery = %+v, want %+v", got, want)
	}
}

func TestSplitURL(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantURL    string
		wantParams []importer.Parameter
	}{
		{
			name:       "default https port and dot segments",
			raw:        "https://API.example.com:443/a/../x/",
			wantURL:    "https://api.example.com/x",
			wantParams: []importer.Parameter{},
		},
		{
			name:       "default http port",
			raw:        "http://h:80/",
			wantURL:    "http://h",
			wantParams: []importer.Parameter{},
		},
		{
			name:       "custom port kept",
			raw:        "https://h:8443/v1/./items",
			wantURL:    "https://h:8443/v1/items",
			wantParams: []importer.Parameter{},
		},
		{
			name:       "malformed escape beside a valid one",
			raw:        "https://h/s?q=%zz%20b",
			wantURL:    "https://h/s",
			wantParams: []importer.Parameter{{Name: "q", Value: "%zz b"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL, gotParams := splitURL(tt.raw)
			if gotURL != tt.wantURL {
				t.Errorf("url = %q, want %q", gotURL, tt.wantURL)
			}
			if !reflect.DeepEqual(gotParams, tt.wantParams) {
				t.Errorf("params = %+v, want %+v", gotParams, tt.wantParams)
			}
		})
	}
}

func TestConvert_LenientQueryEscapes(t *testing.T) {
	req := convertOne(t, `fetch("https://h:443/s?q=%zz%20b", {"method":"GET","headers":{},"body":null});`)
	if req.URL != "https://h/s" {
		t.Errorf("unexpected url %q", req.URL)
	}
	want := []importer.Parameter{{Name: "q", Value: "%zz b"}}
	if !reflect.DeepEqual(req.Parameters, want) {
		t.Errorf("unexpected parameters %+v", req.Parameters)
	}
}
