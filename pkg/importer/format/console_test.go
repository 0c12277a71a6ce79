package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/greg-hellings/reqdesk/pkg/importer"
)

func sampleResult() *importer.Result {
	pw := "hunter22"
	return &importer.Result{
		ConverterID: "fetch",
		Requests: []*importer.Request{
			{
				Name:   "https://api.example.com/items",
				URL:    "https://api.example.com/items",
				Method: "POST",
				Body:   json.RawMessage(`"{\"q\":1}"`),
				Headers: []importer.Header{
					{Name: "accept", Value: "application/json"},
				},
				Parameters: []importer.Parameter{
					{Name: "page", Value: "2"},
					{Name: "debug", Value: "1", Disabled: true},
				},
				Authentication: importer.Basic("alice", &pw),
			},
		},
	}
}

func expectContains(t *testing.T, out, substr, msg string) {
	t.Helper()
	if !strings.Contains(out, substr) {
		t.Errorf("%s\n--- output ---\n%s", msg, out)
	}
}

func TestConsoleFormatter_Render(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false

	if err := f.Render(sampleResult(), &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	out := buf.String()

	expectContains(t, out, "fetch importer: 1 request(s)", "header line missing")
	expectContains(t, out, "Method:         POST", "method missing")
	expectContains(t, out, "https://api.example.com/items", "url missing")
	expectContains(t, out, "basic username=alice password=hunt***", "redacted basic auth missing")
	expectContains(t, out, "Body:           11 bytes", "body size missing")
	expectContains(t, out, "KIND", "table header missing")
	expectContains(t, out, "query (off)", "disabled parameter marker missing")
	expectContains(t, out, "application/json", "header value missing")

	if strings.Contains(out, "hunter22") {
		t.Error("password must be redacted by default")
	}
}

func TestConsoleFormatter_ShowSecrets(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false
	f.ShowSecrets = true

	req := &importer.Request{Name: "x", Authentication: importer.Bearer("tok-123456")}
	if err := f.RenderRequest(req, &buf); err != nil {
		t.Fatal(err)
	}
	expectContains(t, buf.String(), "bearer token=tok-123456", "bearer token missing")
	expectContains(t, buf.String(), "Method:         (none)", "empty method marker missing")
	if strings.Contains(buf.String(), "KIND") {
		t.Error("no table expected without headers or parameters")
	}
}

func TestConsoleFormatter_TruncatesValues(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false
	f.MaxValueColWidth = 8

	req := &importer.Request{Headers: []importer.Header{{Name: "cookie", Value: "abcdefghijklmnop"}}}
	if err := f.RenderRequest(req, &buf); err != nil {
		t.Fatal(err)
	}
	expectContains(t, buf.String(), "abcdefg…", "value should be ellipsized")
}

func TestConsoleFormatter_Nil(t *testing.T) {
	f := NewConsoleFormatter()
	if err := f.Render(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
	if err := f.RenderRequest(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil request")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated", 5, "trun…"},
		{"x", 0, ""},
		{"abc", 1, "…"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
