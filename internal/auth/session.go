package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/chy168/google-chat-mcp-server/internal/errors"
)

const (
	// stateBytes is the number of random bytes in a state parameter
	// (hex-encoded to twice this length).
	stateBytes = 32

	// sessionTTL is how long a pending authorization session stays
	// claimable. Abandoned consent pages beyond this are rejected as
	// unknown state and the user starts over.
	sessionTTL = 10 * time.Minute

	// cleanupInterval controls how often expired sessions are reaped.
	cleanupInterval = time.Minute
)

// session is one in-flight authorization attempt, keyed by its state
// parameter. It is consumed exactly once by the first terminal callback.
type session struct {
	config      *oauth2.Config
	redirectURI string
	createdAt   time.Time
}

// Coordinator matches inbound authorization callbacks to the session that
// started them, exchanges the one-time code for tokens, and persists the
// result. Sessions are independent, so concurrent begin/callback pairs
// only contend on the registry map itself.
type Coordinator struct {
	manager *CredentialManager
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	stopGC   chan struct{}
	stopOnce sync.Once
}

// NewCoordinator creates a coordinator and starts a background goroutine
// that reaps abandoned sessions. Call Stop() to clean up the goroutine.
func NewCoordinator(manager *CredentialManager, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		manager:  manager,
		logger:   logger,
		sessions: make(map[string]*session),
		stopGC:   make(chan struct{}),
	}
	go c.gcLoop()
	return c
}

// Stop terminates the background cleanup goroutine.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopGC) })
}

func (c *Coordinator) gcLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stopGC:
			return
		}
	}
}

func (c *Coordinator) evictExpired() {
	cutoff := time.Now().Add(-sessionTTL)

	c.mu.Lock()
	defer c.mu.Unlock()

	for state, s := range c.sessions {
		if s.createdAt.Before(cutoff) {
			delete(c.sessions, state)
			c.logger.Debug("expired authorization session evicted")
		}
	}
}

// Begin starts a new authorization attempt: it builds the provider
// consent URL requesting offline access and forced re-consent (so a
// refresh token is issued even for a previously granted client),
// registers a session under a fresh state, and returns both. The caller
// presents the URL to the user and correlates the callback by state.
func (c *Coordinator) Begin(redirectURI string) (authURL, state string, err error) {
	cfg, err := c.manager.OAuthConfig(redirectURI)
	if err != nil {
		return "", "", err
	}

	state = RandomHex(stateBytes)

	authURL = cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)

	c.mu.Lock()
	c.sessions[state] = &session{
		config:      cfg,
		redirectURI: redirectURI,
		createdAt:   time.Now(),
	}
	c.mu.Unlock()

	c.logger.Info("authorization started", slog.String("redirect_uri", redirectURI))

	return authURL, state, nil
}

// Complete finishes an authorization attempt. The session is removed on
// every terminal path, success or failure, so a state value can never be
// replayed. A provider error short-circuits before any exchange; an
// exchange that yields no refresh token is a failure even though an
// access token was technically obtained, because a credential that
// cannot refresh is useless to an unattended agent.
func (c *Coordinator) Complete(ctx context.Context, state, code, providerErr string) (*Credential, error) {
	if providerErr != "" {
		c.consume(state)
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProviderDenied, providerErr)
	}

	sess := c.consume(state)
	if sess == nil {
		return nil, apperrors.ErrUnknownState
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	tok, err := sess.config.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: provider issued no refresh token", apperrors.ErrNoRefreshToken)
	}

	cred := FromToken(tok, sess.config.Scopes)
	if err := c.manager.Store().Save(cred); err != nil {
		return nil, err
	}

	c.logger.Info("authorization complete",
		slog.Time("expiry", cred.Expiry),
		slog.Bool("has_refresh_token", cred.CanRefresh()),
	)

	return cred, nil
}

// CompleteFromRedirectURL finishes an authorization attempt from a full
// redirect URL pasted by the user, applying the same extraction rules as
// the callback endpoint: a provider error wins, then a missing code is
// rejected, then the embedded state correlates the session.
func (c *Coordinator) CompleteFromRedirectURL(ctx context.Context, rawURL string) (*Credential, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redirect URL: %w", err)
	}

	q := u.Query()

	if e := q.Get("error"); e != "" {
		c.consume(q.Get("state"))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProviderDenied, e)
	}

	code := q.Get("code")
	if code == "" {
		return nil, fmt.Errorf("no authorization code found in URL")
	}

	return c.Complete(ctx, q.Get("state"), code, "")
}

// consume removes and returns the session for a state, expiring it in
// passing. Returns nil when the state is unknown, already used, or stale.
func (c *Coordinator) consume(state string) *session {
	if state == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[state]
	if !ok {
		return nil
	}
	delete(c.sessions, state)

	if time.Since(sess.createdAt) > sessionTTL {
		return nil
	}

	return sess
}
