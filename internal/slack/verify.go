// Package slack holds the Slack-facing pieces of the bot: request signature
// verification, the Events API envelope and the incoming webhook client.
package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Headers Slack sets on every signed request
const (
	HeaderSignature = "X-Slack-Signature"
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	// HeaderRetryNum is set when Slack redelivers an event it thinks was lost
	HeaderRetryNum    = "X-Slack-Retry-Num"
	HeaderRetryReason = "X-Slack-Retry-Reason"
)

const (
	signatureVersion = "v0"
	// DefaultTolerance is the maximum request age accepted
	DefaultTolerance = 5 * time.Minute
)

// Authentication errors
var (
	ErrStale     = errors.New("request timestamp outside tolerance")
	ErrMismatch  = errors.New("request signature mismatch")
	ErrMalformed = errors.New("malformed signature headers")
)

// Verifier checks Slack request signatures
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier for the given signing secret.
// A zero tolerance falls back to DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// WithClock replaces the time source, used by tests
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify authenticates one request. Staleness is checked before the MAC so
// an old request is rejected even when its signature is valid.
func (v *Verifier) Verify(signature, timestamp string, body []byte) error {
	if signature == "" || timestamp == "" {
		return ErrMalformed
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp %q", ErrMalformed, timestamp)
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrStale
	}

	version, encoded, ok := strings.Cut(signature, "=")
	if !ok || version != signatureVersion {
		return fmt.Errorf("%w: unsupported signature version", ErrMalformed)
	}
	got, err := hex.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrMalformed)
	}

	if !hmac.Equal(got, v.mac(timestamp, body)) {
		return ErrMismatch
	}
	return nil
}

// Sign returns the signature header value for a request body
func (v *Verifier) Sign(timestamp string, body []byte) string {
	return signatureVersion + "=" + hex.EncodeToString(v.mac(timestamp, body))
}

func (v *Verifier) mac(timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	h.Write(body)
	return h.Sum(nil)
}
