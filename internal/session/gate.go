package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/italolelis/playlist_archiver/internal/logctx"
	"github.com/italolelis/playlist_archiver/internal/playlist"
	"github.com/italolelis/playlist_archiver/internal/storage"
	"github.com/italolelis/playlist_archiver/internal/telemetry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DefaultProbeTrackID is a long-lived public video used to check a session.
	DefaultProbeTrackID = "kJQP7kiw5Fk"

	// RedirectPath is where the provider sends the user back with a code.
	RedirectPath = "/login"

	authState = "playlist-archiver"
)

// DefaultScopes are the YouTube scopes requested on consent.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/youtube",
	"https://www.googleapis.com/auth/youtube.force-ssl",
	"https://www.googleapis.com/auth/youtube-paid-content",
	"http://gdata.youtube.com",
}

// Config configures a Gate.
type Config struct {
	ClientID     string
	ClientSecret string
	// BaseHost is the public origin of this service, e.g. https://archiver.example.com.
	BaseHost     string
	ProbeTrackID string
	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint
	Scopes   []string
	// HTTPClient is used for code exchange and token refresh. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Gate owns the process-wide provider session.
type Gate struct {
	cfg       Config
	store     storage.CredentialStore
	cache     *TokenCache
	prober    playlist.MetadataClient
	telemetry *telemetry.Telemetry

	oauthOnce sync.Once
	oauthCfg  *oauth2.Config
	oauthErr  error

	mu    sync.RWMutex
	state State

	// bindMu serializes restores so concurrent probes bind at most once.
	bindMu sync.Mutex
}

func NewGate(cfg Config, store storage.CredentialStore, cache *TokenCache, prober playlist.MetadataClient, tel *telemetry.Telemetry) *Gate {
	if cfg.ProbeTrackID == "" {
		cfg.ProbeTrackID = DefaultProbeTrackID
	}

	if cfg.Endpoint.AuthURL == "" && cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	return &Gate{
		cfg:       cfg,
		store:     store,
		cache:     cache,
		prober:    prober,
		telemetry: tel,
	}
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.state
}

func (g *Gate) setState(ctx context.Context, next State) {
	g.mu.Lock()
	prev := g.state
	g.state = next
	g.mu.Unlock()

	if prev != next {
		logctx.LoggerFromContext(ctx).Info("session state changed", "from", prev.String(), "to", next.String())
		g.telemetry.RecordSessionTransition(ctx, prev.String(), next.String())
	}
}

// IsReady restores the persisted credentials and probes the provider with them.
// A failed probe moves the gate to NoSession and leaves the token cache bound.
// The cache is dropped only when no credentials are stored, and rebound only
// when the stored credentials change.
func (g *Gate) IsReady(ctx context.Context) bool {
	logger := logctx.LoggerFromContext(ctx)

	creds, err := g.store.GetCached(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoCredentials) {
			g.bindMu.Lock()
			g.cache.Reset()
			g.bindMu.Unlock()
		} else {
			logger.Error("failed to read cached credentials", "err", err)
		}

		g.setState(ctx, NoSession)

		return false
	}

	g.restore(ctx, tokenFromCredentials(creds))

	if _, err := g.prober.ResolveTrack(ctx, g.cfg.ProbeTrackID, playlist.Authenticated); err != nil {
		logger.Warn("session probe failed", "err", err)

		g.setState(ctx, NoSession)

		return false
	}

	g.setState(ctx, Authenticated)

	return true
}

// BeginAuthorization returns the provider consent URL.
func (g *Gate) BeginAuthorization(ctx context.Context) (string, error) {
	conf, err := g.oauthConfig()
	if err != nil {
		return "", err
	}

	url := conf.AuthCodeURL(authState,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)

	if g.State() != Authenticated {
		g.setState(ctx, AuthPending)
	}

	return url, nil
}

// CompleteAuthorization exchanges the code and persists the resulting credentials.
func (g *Gate) CompleteAuthorization(ctx context.Context, code string) error {
	conf, err := g.oauthConfig()
	if err != nil {
		return err
	}

	tok, err := conf.Exchange(g.oauthContext(ctx), code)
	if err != nil {
		g.setState(ctx, NoSession)

		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := g.store.Put(ctx, credentialsFromToken(tok)); err != nil {
		g.setState(ctx, NoSession)

		return fmt.Errorf("failed to persist credentials: %w", err)
	}

	g.bindMu.Lock()
	g.bind(ctx, tok)
	g.bindMu.Unlock()

	g.setState(ctx, Authenticated)

	return nil
}

// Logout forgets the session.
func (g *Gate) Logout(ctx context.Context) error {
	g.bindMu.Lock()
	g.cache.Reset()
	g.bindMu.Unlock()

	g.setState(ctx, NoSession)

	if err := g.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	return nil
}

// oauthConfig builds the oauth2 config once and reuses it.
func (g *Gate) oauthConfig() (*oauth2.Config, error) {
	g.oauthOnce.Do(func() {
		switch {
		case g.cfg.ClientID == "":
			g.oauthErr = &playlist.ConfigurationError{Setting: "OAUTH2_CLIENT_ID", Reason: "must be set"}
		case g.cfg.ClientSecret == "":
			g.oauthErr = &playlist.ConfigurationError{Setting: "OAUTH2_CLIENT_SECRET", Reason: "must be set"}
		case g.cfg.BaseHost == "":
			g.oauthErr = &playlist.ConfigurationError{Setting: "BASE_HOST", Reason: "must be set"}
		default:
			g.oauthCfg = &oauth2.Config{
				ClientID:     g.cfg.ClientID,
				ClientSecret: g.cfg.ClientSecret,
				Endpoint:     g.cfg.Endpoint,
				RedirectURL:  strings.TrimSuffix(g.cfg.BaseHost, "/") + RedirectPath,
				Scopes:       g.cfg.Scopes,
			}
		}
	})

	return g.oauthCfg, g.oauthErr
}

func (g *Gate) oauthContext(ctx context.Context) context.Context {
	if g.cfg.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, g.cfg.HTTPClient)
	}

	return ctx
}

// restore binds tok unless the cache already serves the same credentials.
func (g *Gate) restore(ctx context.Context, tok *oauth2.Token) {
	g.bindMu.Lock()
	defer g.bindMu.Unlock()

	if g.cache.Holds(tok) {
		return
	}

	g.bind(ctx, tok)
}

// bind installs tok in the token cache. Without a usable oauth config the
// token cannot be refreshed and is served as is.
func (g *Gate) bind(ctx context.Context, tok *oauth2.Token) {
	logger := logctx.LoggerFromContext(ctx)

	conf, err := g.oauthConfig()
	if err != nil {
		g.cache.Bind(oauth2.StaticTokenSource(tok), tok, nil)

		return
	}

	// Refreshes outlive the request that triggered the bind.
	src := conf.TokenSource(g.oauthContext(context.WithoutCancel(ctx)), tok)

	g.cache.Bind(src, tok, func(refreshed *oauth2.Token) {
		if err := g.store.Put(context.WithoutCancel(ctx), credentialsFromToken(refreshed)); err != nil {
			logger.Error("failed to persist refreshed credentials", "err", err)

			return
		}

		logger.Debug("refreshed credentials persisted")
	})
}

func tokenFromCredentials(c *storage.SessionCredentials) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

func credentialsFromToken(t *oauth2.Token) *storage.SessionCredentials {
	return &storage.SessionCredentials{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}
