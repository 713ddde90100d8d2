/**
 * @description
 * Verification of the provider's webhook signature header.
 *
 * The header carries comma separated key=value pairs: `t` is the unix
 * timestamp the provider signed at and every `v1` is a lowercase hex
 * HMAC-SHA256 of "{t}.{raw body}" keyed by the endpoint's signing secret.
 */

package api

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

// DefaultSignatureTolerance is the replay window applied when none is configured.
const DefaultSignatureTolerance = 300 * time.Second

var (
	ErrMalformedSignatureHeader = errors.New("malformed signature header")
	ErrSignatureMismatch        = errors.New("signature mismatch")
	ErrStaleTimestamp           = errors.New("signature timestamp outside tolerance")
)

// SignatureVerifier authenticates webhook payloads.
type SignatureVerifier struct {
	Tolerance time.Duration
	Now       func() time.Time
}

// NewSignatureVerifier returns a verifier using the wall clock.
func NewSignatureVerifier(tolerance time.Duration) *SignatureVerifier {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &SignatureVerifier{Tolerance: tolerance, Now: time.Now}
}

// Verify reports whether header is a fresh, valid signature of payload.
func (v *SignatureVerifier) Verify(payload []byte, header, secret string) bool {
	return v.Check(payload, header, secret) == nil
}

// Check is Verify with the rejection reason. The digest comparison runs even
// when the timestamp is already known to be stale.
func (v *SignatureVerifier) Check(payload []byte, header, secret string) error {
	parsed, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	expected := []byte(computeSignature(parsed.rawTimestamp, payload, secret))
	matched := 0
	for _, candidate := range parsed.signatures {
		matched |= subtle.ConstantTimeCompare(expected, []byte(candidate))
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	current := now().Unix()
	window := int64(tolerance / time.Second)

	if matched != 1 {
		return ErrSignatureMismatch
	}
	// Bounds are derived from the clock only; t is never part of the arithmetic.
	if parsed.timestamp < current-window || parsed.timestamp > current+window {
		return ErrStaleTimestamp
	}
	return nil
}

// SignHeader builds a header for payload signed at ts. Used by tests and local tooling.
func SignHeader(payload []byte, secret string, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + computeSignature(unix, payload, secret)
}

func computeSignature(timestamp string, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type signatureHeader struct {
	timestamp    int64
	rawTimestamp string
	signatures   []string
}

func parseSignatureHeader(header string) (signatureHeader, error) {
	var (
		parsed       signatureHeader
		hasTimestamp bool
	)

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return signatureHeader{}, ErrMalformedSignatureHeader
			}
			parsed.timestamp = ts
			parsed.rawTimestamp = value
			hasTimestamp = true
		case "v1":
			if value != "" {
				parsed.signatures = append(parsed.signatures, value)
			}
		}
	}

	if !hasTimestamp || len(parsed.signatures) == 0 {
		return signatureHeader{}, ErrMalformedSignatureHeader
	}
	return parsed, nil
}
