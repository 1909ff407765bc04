package ragapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoAccessToken = errors.New("no access token cookie")

// AccessTokenExpiry reads the expiry of the backend's JWT cookie. The token is
// not verified.
func (c *Client) AccessTokenExpiry() (time.Time, error) {
	raw := c.Cookie(AccessTokenCookie)
	if raw == "" {
		return time.Time{}, ErrNoAccessToken
	}
	return TokenExpiry(raw)
}

// TokenExpiry returns the exp claim of an unverified JWT. A token without
// exp yields the zero time.
func TokenExpiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// RestoreAccessToken puts a previously issued token back into the cookie jar,
// so a restored session can keep talking to the backend.
func (c *Client) RestoreAccessToken(token string) {
	if token == "" {
		return
	}
	c.jar.SetCookies(c.base, []*http.Cookie{{
		Name:     AccessTokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	}})
}
