package importer

import (
	"encoding/json"
)

// Request is an imported HTTP request.
type Request struct {
	ID             string          `json:"_id"`
	Type           string          `json:"_type"`
	ParentID       string          `json:"parentId"`
	Name           string          `json:"name"`
	URL            string          `json:"url"`
	Method         string          `json:"method"`
	Body           json.RawMessage `json:"body,omitempty"`
	Headers        []Header        `json:"headers"`
	Parameters     []Parameter     `json:"parameters"`
	Authentication Authentication  `json:"authentication"`
}

// Header is a name/value pair; order is preserved from the source.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Parameter is a query parameter.
type Parameter struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled"`
}

// AuthType tags the Authentication variant.
type AuthType string

// Authentication variants.
const (
	AuthNone   AuthType = ""
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
)

// Authentication is a tagged variant: none, basic or bearer. Only the fields
// of the active variant are meaningful.
type Authentication struct {
	Type     AuthType
	Disabled bool

	// basic
	Username string
	Password *string // nil when the decoded credentials carried no colon

	// bearer
	Token  string
	Prefix string
}

// Basic builds a basic authentication value.
func Basic(username string, password *string) Authentication {
	return Authentication{Type: AuthBasic, Username: username, Password: password}
}

// Bearer builds a bearer authentication value.
func Bearer(token string) Authentication {
	return Authentication{Type: AuthBearer, Token: token}
}

// IsZero reports whether no authentication is set.
func (a Authentication) IsZero() bool {
	return a.Type == AuthNone
}

type basicJSON struct {
	Type     AuthType `json:"type"`
	Disabled bool     `json:"disabled"`
	Username string   `json:"username"`
	Password *string  `json:"password,omitempty"`
}

type bearerJSON struct {
	Type     AuthType `json:"type"`
	Disabled bool     `json:"disabled"`
	Token    string   `json:"token"`
	Prefix   string   `json:"prefix"`
}

// MarshalJSON emits only the fields of the active variant; none encodes as {}.
func (a Authentication) MarshalJSON() ([]byte, error) {
	switch a.Type {
	case AuthBasic:
		return json.Marshal(basicJSON{Type: a.Type, Disabled: a.Disabled, Username: a.Username, Password: a.Password})
	case AuthBearer:
		return json.Marshal(bearerJSON{Type: a.Type, Disabled: a.Disabled, Token: a.Token, Prefix: a.Prefix})
	default:
		return []byte("{}"), nil
	}
}

// UnmarshalJSON accepts the shapes produced by MarshalJSON.
func (a *Authentication) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type     AuthType `json:"type"`
		Disabled bool     `json:"disabled"`
		Username string   `json:"username"`
		Password *string  `json:"password"`
		Token    string   `json:"token"`
		Prefix   string   `json:"prefix"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	*a = Authentication{Type: probe.Type, Disabled: probe.Disabled}
	switch probe.Type {
	case AuthBasic:
		a.Username, a.Password = probe.Username, probe.Password
	case AuthBearer:
		a.Token, a.Prefix = probe.Token, probe.Prefix
	default:
		a.Type = AuthNone
	}
	return nil
}
