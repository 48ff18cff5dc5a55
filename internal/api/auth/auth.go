// Package auth authenticates dashboard callers and issues the anti-forgery
// nonces required on control requests.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Set of errors returned by the auth package.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrBadNonce     = errors.New("Security check failed")
)

// NonceHeader carries the anti-forgery nonce on control requests.
const NonceHeader = "X-USH-Nonce"

const nonceAction = "ush-scan"

// Config configures the authenticator.
type Config struct {
	// AdminToken is the bearer token of the single authorized caller.
	AdminToken string
	// NonceSecret keys the nonce HMAC.
	NonceSecret string
	// NonceTTL is how long an issued nonce stays valid. A nonce is accepted
	// in the half-window it was issued in and the one after it.
	NonceTTL time.Duration
}

// Auth checks bearer tokens and nonces.
type Auth struct {
	token  []byte
	secret []byte
	tick   time.Duration
	now    func() time.Time
}

// New constructs an Auth. Both the token and the secret are required.
func New(cfg Config) (*Auth, error) {
	if cfg.AdminToken == "" {
		return nil, errors.New("auth: admin token is required")
	}
	if cfg.NonceSecret == "" {
		return nil, errors.New("auth: nonce secret is required")
	}
	ttl := cfg.NonceTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{
		token:  []byte(cfg.AdminToken),
		secret: []byte(cfg.NonceSecret),
		tick:   ttl / 2,
		now:    time.Now,
	}, nil
}

// Authenticate validates an Authorization header value of the form
// "Bearer <token>".
func (a *Auth) Authenticate(header string) error {
	if header == "" {
		return ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(parts[1]), a.token) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// IssueNonce returns a nonce bound to the caller's token.
func (a *Auth) IssueNonce() string {
	return a.nonceFor(a.currentTick())
}

// VerifyNonce accepts nonces from the current or the previous tick.
func (a *Auth) VerifyNonce(nonce string) error {
	if nonce == "" {
		return ErrBadNonce
	}
	tick := a.currentTick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(nonce), []byte(a.nonceFor(t))) {
			return nil
		}
	}
	return ErrBadNonce
}

func (a *Auth) currentTick() int64 {
	return a.now().UnixNano() / int64(a.tick)
}

func (a *Auth) nonceFor(tick int64) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(nonceAction))
	mac.Write([]byte{'|'})
	mac.Write(a.token)
	return hex.EncodeToString(mac.Sum(nil))[:20]
}
