// Package credentials supplies per-request authentication for the chat API.
//
// Obtaining and refreshing tokens is someone else's job; this package only
// defines what the exchange and history clients consume.
package credentials

import (
	"context"
	"net/http"
)

// Credentials is what gets attached to one outgoing request. Either field
// may be empty.
type Credentials struct {
	APIKey      string
	BearerToken string
}

// Empty reports whether no credential is set.
func (c Credentials) Empty() bool {
	return c.APIKey == "" && c.BearerToken == ""
}

// Apply sets the auth headers for c on req.
func (c Credentials) Apply(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
}

// Provider returns the credentials to use for the next request.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Credentials, error)

func (f ProviderFunc) Credentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// Static always returns the same credentials.
type Static Credentials

func (s Static) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// None is a Provider that never authenticates.
var None Provider = Static{}

// Attach resolves credentials from p and applies them to req. A nil
// provider attaches nothing.
func Attach(ctx context.Context, p Provider, req *http.Request) error {
	if p == nil {
		return nil
	}
	c, err := p.Credentials(ctx)
	if err != nil {
		return err
	}
	if c.Empty() {
		return nil
	}
	c.Apply(req)
	return nil
}
