package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// Signer produces OKX V5 authentication headers.
type Signer struct {
	apiKey     string
	secretKey  string
	passphrase string
	now        func() time.Time
}

func NewSigner(apiKey, secretKey, passphrase string) *Signer {
	return &Signer{apiKey: apiKey, secretKey: secretKey, passphrase: passphrase, now: time.Now}
}

// HasCredentials reports whether private endpoints can be signed.
func (s *Signer) HasCredentials() bool {
	return s.apiKey != "" && s.secretKey != "" && s.passphrase != ""
}

// Headers signs timestamp + method + requestPath + body, where requestPath
// includes the query string.
func (s *Signer) Headers(method, requestPath, body string) map[string]string {
	// ISO-8601 with milliseconds in UTC
	ts := s.now().UTC().Format("2006-01-02T15:04:05.000Z")

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(ts + method + requestPath + body))

	return map[string]string{
		"OK-ACCESS-KEY":        s.apiKey,
		"OK-ACCESS-SIGN":       base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": s.passphrase,
	}
}
