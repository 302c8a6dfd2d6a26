// Package telegram holds the Telegram Mini-App integration: verification of
// the signed initData string the WebApp hands to the page, and rendering of
// assistant replies into the HTML subset Telegram accepts.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/tbourn/cbo-bro-backend/internal/domain"
)

var (
	ErrEmptyInitData    = errors.New("telegram: empty init data")
	ErrMalformed        = errors.New("telegram: malformed init data")
	ErrMissingHash      = errors.New("telegram: init data has no hash")
	ErrInvalidSignature = errors.New("telegram: init data signature mismatch")
	ErrExpired          = errors.New("telegram: init data expired")
	ErrMissingUser      = errors.New("telegram: init data has no user")
	ErrNoBotToken       = errors.New("telegram: bot token not configured")
)

// Verifier checks initData strings signed for one bot.
type Verifier struct {
	BotToken string
	// MaxAge bounds now-auth_date. Zero disables the check.
	MaxAge time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewVerifier returns a Verifier for botToken.
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	return &Verifier{BotToken: botToken, MaxAge: maxAge, Now: time.Now}
}

// Verify validates the signature and freshness of raw and returns the
// identity of the user it carries.
func (v *Verifier) Verify(raw string) (domain.Identity, error) {
	if strings.TrimSpace(v.BotToken) == "" {
		return domain.Identity{}, ErrNoBotToken
	}
	if strings.TrimSpace(raw) == "" {
		return domain.Identity{}, ErrEmptyInitData
	}

	// Signature only; freshness is checked against v.Now below.
	if err := initdata.Validate(raw, v.BotToken, 0); err != nil {
		return domain.Identity{}, validationError(err)
	}
	data, err := initdata.Parse(raw)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if v.MaxAge > 0 {
		if data.AuthDateRaw <= 0 {
			return domain.Identity{}, ErrMalformed
		}
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		if now().Sub(data.AuthDate()) > v.MaxAge {
			return domain.Identity{}, ErrExpired
		}
	}

	u := data.User
	if u.ID == 0 {
		return domain.Identity{}, ErrMissingUser
	}
	id := domain.Identity{TelegramID: u.ID, FirstName: u.FirstName}
	if u.LastName != "" {
		id.LastName = &u.LastName
	}
	if u.Username != "" {
		id.Username = &u.Username
	}
	return id, nil
}

func validationError(err error) error {
	switch {
	case errors.Is(err, initdata.ErrSignMissing):
		return ErrMissingHash
	case errors.Is(err, initdata.ErrSignInvalid):
		return ErrInvalidSignature
	case errors.Is(err, initdata.ErrUnexpectedFormat):
		return ErrMalformed
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
}

// Sign computes the hash field for vals and returns the encoded init data,
// the way Telegram signs it for the bot. Any existing hash in vals is
// ignored. Used to build init data for tests and local clients.
func Sign(vals url.Values, botToken string) string {
	out := url.Values{}
	for k, v := range vals {
		if k != "hash" {
			out[k] = v
		}
	}
	out.Set("hash", hex.EncodeToString(signature(out, botToken)))
	return out.Encode()
}

// signature is HMAC_SHA256(data_check_string, HMAC_SHA256(bot_token, "WebAppData")).
func signature(vals url.Values, botToken string) []byte {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+vals.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}
