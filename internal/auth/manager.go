package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/chy168/google-chat-mcp-server/internal/errors"
)

// Scopes requested from Google. If these change, the token file must be
// deleted and the user re-authorized.
var Scopes = []string{
	"https://www.googleapis.com/auth/chat.spaces.readonly",
	"https://www.googleapis.com/auth/chat.messages",
}

// exchangeTimeout bounds every token endpoint round-trip. The provider
// gives no guarantee here and an unattended agent must not hang forever.
const exchangeTimeout = 30 * time.Second

// CredentialManager owns credential validity and refresh policy. Refresh
// is lazy: it happens on read when the stored credential has expired,
// never on a background timer. Concurrent refreshes are collapsed so only
// one exchange is in flight per store.
type CredentialManager struct {
	store           *TokenStore
	credentialsPath string
	logger          *slog.Logger
	refreshGroup    singleflight.Group
}

// NewCredentialManager creates a manager over the given store. The
// credentialsPath is the Google client secrets JSON file; it is read
// lazily so a missing file only fails operations that actually need it.
func NewCredentialManager(store *TokenStore, credentialsPath string, logger *slog.Logger) *CredentialManager {
	return &CredentialManager{
		store:           store,
		credentialsPath: credentialsPath,
		logger:          logger,
	}
}

// OAuthConfig reads the client secrets file and builds the oauth2 config
// with the given redirect URI. Returns ErrMissingClientConfig when the
// file is absent, which is a setup error rather than something to retry.
func (m *CredentialManager) OAuthConfig(redirectURI string) (*oauth2.Config, error) {
	data, err := os.ReadFile(m.credentialsPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrMissingClientConfig, m.credentialsPath)
	}
	if err != nil {
		return nil, fmt.Errorf("reading client secrets: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secrets: %w", err)
	}

	cfg.RedirectURL = redirectURI

	return cfg, nil
}

// GetCredential returns a usable credential, or nil when none exists and
// none can be obtained without human interaction. The recovery ladder is
// memory, then storage, then a refresh when the stored credential has
// expired but holds a refresh token. A failed refresh yields nil rather
// than an error; the only error returned is storage corruption, which
// callers must surface instead of treating as "not authenticated".
func (m *CredentialManager) GetCredential(ctx context.Context) (*Credential, error) {
	cred, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, nil
	}

	if cred.Valid() {
		return cred, nil
	}

	if !cred.CanRefresh() {
		m.logger.Debug("credential expired with no refresh token")
		return nil, nil
	}

	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		return nil, nil
	}

	cred, err = m.store.Load()
	if err != nil {
		return nil, err
	}
	if !cred.Valid() {
		return nil, nil
	}

	return cred, nil
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the result. On any failure the previous record is left
// untouched so a failed refresh never destroys the last known-good token.
// Concurrent callers share a single in-flight exchange.
func (m *CredentialManager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do(m.store.Path(), func() (interface{}, error) {
		return nil, m.refresh(ctx)
	})

	return err
}

func (m *CredentialManager) refresh(ctx context.Context) error {
	cred, err := m.store.Load()
	if err != nil {
		return err
	}
	if cred == nil {
		return errors.New("no token file found")
	}
	if !cred.CanRefresh() {
		return apperrors.ErrNoRefreshToken
	}

	cfg, err := m.OAuthConfig("")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	// Force the source to mint a new access token by presenting only the
	// refresh token.
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}

	// Providers usually return the refresh token only on the first
	// exchange; carry the old one forward when the response omits it.
	if tok.RefreshToken == "" {
		tok.RefreshToken = cred.RefreshToken
	}

	if err := m.store.Save(FromToken(tok, cred.Scopes)); err != nil {
		return err
	}

	m.logger.Info("token refreshed", slog.Time("expiry", tok.Expiry))

	return nil
}

// Store exposes the underlying token store for status reporting.
func (m *CredentialManager) Store() *TokenStore {
	return m.store
}
