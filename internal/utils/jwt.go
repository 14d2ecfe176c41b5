package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"expires_at"`
}

// NewAccessToken builds and signs an HS256 JWT carrying the subject and
// role claims the API middleware reads.  Production tokens come from the
// identity provider; this is used by auctionctl and tests.
func NewAccessToken(secret, sub, role string, ttl time.Duration) (AccessToken, error) {
	if strings.TrimSpace(sub) == "" {
		return AccessToken{}, errors.New("subject is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  sub,
		"role": strings.ToUpper(role),
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
