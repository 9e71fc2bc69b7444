package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"trading-bot-backend/internal/core"
)

// Credentials never leave process memory. String masks both halves so the
// value is safe to pass to a logger by accident.
type Credentials struct {
	APIKey    string
	APISecret string
}

func (c Credentials) Present() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.APISecret) != ""
}

func (c Credentials) String() string {
	return "binance.Credentials{api_key=" + mask(c.APIKey) + " api_secret=" + mask(c.APISecret) + "}"
}

func mask(v string) string {
	if v == "" {
		return "<empty>"
	}
	if len(v) <= 4 {
		return "****"
	}
	return v[:4] + "****"
}

type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, &core.ConfigurationError{Field: "api_secret", Reason: "required for signing"}
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the lowercase hex HMAC-SHA256 of payload. The payload must be
// the exact query string that goes on the wire.
func (s *Signer) Sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// query keeps parameters in insertion order. The exchange recomputes the
// signature over the string it receives, so sorting would break it.
type query struct {
	keys []string
	vals []string
}

func newQuery() *query {
	return &query{}
}

func (q *query) add(key, value string) *query {
	q.keys = append(q.keys, key)
	q.vals = append(q.vals, value)
	return q
}

func (q *query) encode() string {
	if q == nil || len(q.keys) == 0 {
		return ""
	}
	b := strings.Builder{}
	for i, k := range q.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.vals[i]))
	}
	return b.String()
}
