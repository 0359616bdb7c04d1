package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	flashCookie = "dapur_flash"
	flashTTL    = time.Minute
)

// flashSigner carries one-shot messages across a redirect in a signed
// cookie.
type flashSigner struct {
	secret []byte
	now    func() time.Time
}

func newFlashSigner(secret string) *flashSigner {
	return &flashSigner{secret: []byte(secret), now: time.Now}
}

func (f *flashSigner) set(w http.ResponseWriter, message string) error {
	now := f.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"msg": message,
		"iat": now.Unix(),
		"exp": now.Add(flashTTL).Unix(),
	})

	signed, err := token.SignedString(f.secret)
	if err != nil {
		return fmt.Errorf("failed to sign flash message: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(flashTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// pop returns the pending message and clears the cookie. Tampered or
// expired cookies yield "".
func (f *flashSigner) pop(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	token, err := jwt.Parse(c.Value, func(*jwt.Token) (any, error) {
		return f.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(f.now))
	if err != nil || !token.Valid {
		return ""
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	msg, _ := claims["msg"].(string)
	return msg
}
