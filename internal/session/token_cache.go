package session

import (
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoSession is returned by TokenCache when no credentials are bound.
var ErrNoSession = errors.New("no provider session")

// TokenCache is the oauth2.TokenSource behind the authenticated provider
// client. It exists before any session does, so the client can be built once
// at startup and pick up credentials when the gate binds them.
type TokenCache struct {
	mu        sync.Mutex
	source    oauth2.TokenSource
	current   *oauth2.Token
	onRefresh func(*oauth2.Token)
}

func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// Bind installs a token source. onRefresh runs synchronously whenever the
// source hands out a token different from the last one.
func (c *TokenCache) Bind(src oauth2.TokenSource, current *oauth2.Token, onRefresh func(*oauth2.Token)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.source = src
	c.current = current
	c.onRefresh = onRefresh
}

// Reset drops the bound source.
func (c *TokenCache) Reset() {
	c.Bind(nil, nil, nil)
}

// Holds reports whether a source is installed for tok's credentials, either
// tok itself or a token the source refreshed from it and handed out.
func (c *TokenCache) Holds(tok *oauth2.Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.source != nil && c.current != nil &&
		c.current.AccessToken == tok.AccessToken &&
		c.current.RefreshToken == tok.RefreshToken
}

// Bound reports whether a token source is installed.
func (c *TokenCache) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.source != nil
}

// Token implements oauth2.TokenSource.
func (c *TokenCache) Token() (*oauth2.Token, error) {
	c.mu.Lock()

	if c.source == nil {
		c.mu.Unlock()

		return nil, ErrNoSession
	}

	tok, err := c.source.Token()
	if err != nil {
		c.mu.Unlock()

		return nil, err
	}

	var notify func(*oauth2.Token)
	if c.current == nil || c.current.AccessToken != tok.AccessToken {
		c.current = tok
		notify = c.onRefresh
	}

	c.mu.Unlock()

	if notify != nil {
		notify(tok)
	}

	return tok, nil
}
