package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Authentication errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrAuthTokenInvalid  = errors.New("invalid auth token format")
	ErrAuthTokenMismatch = errors.New("auth token mismatch")
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Enabled determines if authentication is required
	Enabled bool
	// Token is the secret token that clients must provide
	Token string
}

// Authenticator checks the handshake frame of new connections.
type Authenticator struct {
	config AuthConfig
	mu     sync.RWMutex
}

// NewAuthenticator creates an Authenticator. If auth is enabled without a
// token, a random one is generated; read it back with Token.
func NewAuthenticator(config AuthConfig) *Authenticator {
	if config.Enabled && config.Token == "" {
		config.Token = GenerateToken()
	}
	return &Authenticator{config: config}
}

// IsEnabled returns true if authentication is enabled.
func (a *Authenticator) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Enabled
}

// Token returns the current auth token.
func (a *Authenticator) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Token
}

// ValidateToken compares providedToken with the configured token in
// constant time.
func (a *Authenticator) ValidateToken(providedToken string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.config.Enabled {
		return nil
	}
	if providedToken == "" {
		return ErrAuthRequired
	}
	if subtle.ConstantTimeCompare([]byte(a.config.Token), []byte(providedToken)) != 1 {
		return ErrAuthTokenMismatch
	}
	return nil
}

// Handshake reads the auth frame from rw and answers it. It is a no-op
// when auth is disabled.
func (a *Authenticator) Handshake(rw io.ReadWriter) error {
	if !a.IsEnabled() {
		return nil
	}

	frame, err := ReadMessage(rw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	var msg AuthMessage
	if err := json.Unmarshal(frame, &msg); err != nil || msg.Type != "auth" {
		err = ErrAuthTokenInvalid
		_ = WriteJSON(rw, AuthResponse{Error: err.Error()})
		return err
	}

	if err := a.ValidateToken(msg.Token); err != nil {
		_ = WriteJSON(rw, AuthResponse{Error: err.Error()})
		return err
	}
	return WriteJSON(rw, AuthResponse{Success: true})
}

// ClientHandshake sends token as the auth frame and waits for the answer.
func ClientHandshake(rw io.ReadWriter, token string) error {
	if err := WriteJSON(rw, AuthMessage{Type: "auth", Token: token}); err != nil {
		return err
	}
	var resp AuthResponse
	if err := ReadJSON(rw, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Error)
	}
	return nil
}

// GenerateToken generates a cryptographically secure random token.
func GenerateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// AuthMessage is the first frame a client sends when auth is enabled.
type AuthMessage struct {
	Type  string `json:"type"`  // Must be "auth"
	Token string `json:"token"` // The authentication token
}

// AuthResponse answers an AuthMessage.
type AuthResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
