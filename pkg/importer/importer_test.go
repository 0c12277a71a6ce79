package importer

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

type stubConverter struct {
	id    string
	reqs  []*Request
	err   error
	calls int
}

func (s *stubConverter) ID() string          { return s.id }
func (s *stubConverter) Name() string        { return s.id }
func (s *stubConverter) Description() string { return "stub " + s.id }

func (s *stubConverter) Convert(string) ([]*Request, error) {
	s.calls++
	return s.reqs, s.err
}

func TestChain_Convert(t *testing.T) {
	t.Run("first match wins", func(t *testing.T) {
		miss := &stubConverter{id: "miss"}
		hit := &stubConverter{id: "hit", reqs: []*Request{{Name: "r"}}}
		after := &stubConverter{id: "after", reqs: []*Request{{Name: "other"}}}

		res, err := NewChain(miss, hit, after).Convert("anything")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ConverterID != "hit" || len(res.Requests) != 1 || res.Requests[0].Name != "r" {
			t.Errorf("unexpected result %+v", res)
		}
		if miss.calls != 1 || after.calls != 0 {
			t.Errorf("unexpected call counts: miss=%d after=%d", miss.calls, after.calls)
		}
	})

	t.Run("nothing matches", func(t *testing.T) {
		_, err := NewChain(&stubConverter{id: "a"}, &stubConverter{id: "b"}).Convert("x")
		if !errors.Is(err, ErrUnrecognizedFormat) {
			t.Errorf("expected ErrUnrecognizedFormat, got %v", err)
		}
	})

	t.Run("converter error stops chain", func(t *testing.T) {
		boom := errors.New("boom")
		next := &stubConverter{id: "next", reqs: []*Request{{}}}
		_, err := NewChain(&stubConverter{id: "bad", err: boom}, next).Convert("x")
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped boom, got %v", err)
		}
		if next.calls != 0 {
			t.Error("chain should stop at the failing converter")
		}
	})

	t.Run("empty chain", func(t *testing.T) {
		if _, err := NewChain().Convert("x"); !errors.Is(err, ErrUnrecognizedFormat) {
			t.Errorf("expected ErrUnrecognizedFormat, got %v", err)
		}
	})
}

func TestChain_ConvertersCopy(t *testing.T) {
	c := NewChain(&stubConverter{id: "a"})
	list := c.Converters()
	list[0] = &stubConverter{id: "mutated"}
	if c.Converters()[0].ID() != "a" {
		t.Error("Converters must return a copy")
	}
}

func TestAuthentication_JSON(t *testing.T) {
	pw := "pass"
	tests := []struct {
		name string
		auth Authentication
		want string
	}{
		{"none", Authentication{}, `{}`},
		{"bearer", Bearer("tok"), `{"type":"bearer","disabled":false,"token":"tok","prefix":""}`},
		{"basic", Basic("user", &pw), `{"type":"basic","disabled":false,"username":"user","password":"pass"}`},
		{"basic no password", Basic("user", nil), `{"type":"basic","disabled":false,"username":"user"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.auth)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tt.want {
				t.Errorf("got %s, want %s", out, tt.want)
			}

			var back Authentication
			if err := json.Unmarshal(out, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !reflect.DeepEqual(back, tt.auth) {
				t.Errorf("decoded %+v, want %+v", back, tt.auth)
			}
		})
	}
}

func TestRequest_JSONFieldNames(t *testing.T) {
	req := Request{
		ID:         RequestIDPlaceholder,
		Type:       "request",
		ParentID:   WorkspaceIDPlaceholder,
		Name:       "n",
		URL:        "https://example.com",
		Method:     "GET",
		Body:       json.RawMessage(`null`),
		Headers:    []Header{},
		Parameters: []Parameter{{Name: "a", Value: "1"}},
	}
	out, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"_id", "_type", "parentId", "name", "url", "method", "body", "headers", "parameters", "authentication"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing field %q in %s", key, out)
		}
	}
	if string(fields["authentication"]) != "{}" {
		t.Errorf("expected empty authentication, got %s", fields["authentication"])
	}
}
