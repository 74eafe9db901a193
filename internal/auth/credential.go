// Package auth implements the OAuth credential lifecycle for the Google
// Chat client: durable token storage, lazy refresh, and the authorization
// callback state machine. All session state is in-memory; a restart loses
// in-flight authorization attempts and the user must start over.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the bearer artifact used against the Chat API. It wraps
// the oauth2 token with the scope set it was granted under.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// Valid reports whether the credential can be used right now: a non-empty
// access token that has either no expiry or an expiry in the future.
func (c *Credential) Valid() bool {
	if c == nil || c.AccessToken == "" {
		return false
	}

	return c.Expiry.IsZero() || time.Now().Before(c.Expiry)
}

// CanRefresh reports whether the credential can outlive its access token.
func (c *Credential) CanRefresh() bool {
	return c != nil && c.RefreshToken != ""
}

// Token converts the credential to an oauth2.Token for use with token
// sources and API clients.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// FromToken builds a credential from an oauth2 token and the scopes it
// was granted under.
func FromToken(tok *oauth2.Token, scopes []string) *Credential {
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
}

// RandomHex generates a cryptographically random hex string of the given
// byte length.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
