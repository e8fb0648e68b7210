package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
)

const CookieName = "teledrive_session"

const insecureDevKey = "insecure-development-key-change-me"

var ErrNoToken = errors.New("no session token")

type Claims struct {
	SessionID string `json:"sid"`
	jwt.StandardClaims
}

// Tokens signs and verifies session tokens with HS256.
type Tokens struct {
	key []byte
	ttl time.Duration
}

// NewTokens returns a signer. An empty key falls back to a fixed development key.
func NewTokens(key string, ttl time.Duration) *Tokens {
	if key == "" {
		key = insecureDevKey
	}
	return &Tokens{key: []byte(key), ttl: ttl}
}

func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

func (t *Tokens) Generate(sessionID string, now time.Time) (string, error) {
	claims := &Claims{
		SessionID: sessionID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(t.ttl).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

func (t *Tokens) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.key, nil
	})
	if err != nil {
		return nil, err
	}

	if !tkn.Valid || claims.SessionID == "" {
		return nil, jwt.ErrSignatureInvalid
	}

	return claims, nil
}

// FromRequest reads the session token from the cookie, or from a Bearer header.
func FromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):], nil
	}
	return "", ErrNoToken
}

func SetCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
