// Package ticket implements the signed-ticket channel authorization protocol.
//
// A ticket is three dot-separated, URL-safe-base64 segments:
// header.claims.signature, where the signature is HMAC-SHA256 over the
// literal "header.claims" string keyed with the shared secret. The verifier
// checks structure and signature only; ticket freshness is the issuer's
// responsibility.
package ticket

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mediumart/echo.io/pkg/wire"
)

// ErrInvalidTicket is returned for any verification failure: malformed
// structure, signature mismatch, or an undecodable claims segment. Callers
// get no further detail; authorization fails closed.
var ErrInvalidTicket = errors.New("ticket: invalid ticket")

// Payload is the decoded claims segment of a verified ticket.
type Payload struct {
	// Claims is set when the segment decodes to a JSON object.
	Claims *wire.Claims
	// Raw is the decoded segment verbatim, whatever its shape.
	Raw string
}

// Verify checks the structure and signature of token against key and decodes
// its claims segment. A claims segment that is not a JSON object is still
// valid; it is returned with Claims left nil.
func Verify(token, key string) (Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Payload{}, ErrInvalidTicket
	}

	expected := Sign(key, parts[0]+"."+parts[1])
	if !compare(parts[2], expected) {
		return Payload{}, ErrInvalidTicket
	}

	decoded, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Payload{}, ErrInvalidTicket
	}

	payload := Payload{Raw: string(decoded)}
	if isJSONObject(decoded) {
		var claims wire.Claims
		if err := json.Unmarshal(decoded, &claims); err == nil {
			payload.Claims = &claims
		}
	}
	return payload, nil
}

// Sign computes the URL-safe-base64 HMAC-SHA256 signature of data under key.
// Issuers build a ticket as header + "." + claims + "." + Sign(key, header +
// "." + claims).
func Sign(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// compare is constant-time for equal-length inputs. A length mismatch is a
// plain mismatch, never an error.
func compare(supplied, expected string) bool {
	if len(supplied) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) == 1
}

func isJSONObject(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
