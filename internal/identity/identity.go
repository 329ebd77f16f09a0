// Package identity derives stable session identities for inbound
// requests. A session identity is an opaque string keying one
// conversation thread: either a value the client supplied explicitly,
// or a deterministic anonymous token derived from connection
// attributes. Resolution never fails; the worst case is the shared
// Fallback identity.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net"
	"strconv"
)

const (
	// AnonPrefix marks identities derived from connection attributes
	// rather than supplied by the client.
	AnonPrefix = "anon_"

	// Fallback is the degenerate identity used when nothing resolvable
	// is available. Callers must tolerate collisions under it.
	Fallback = "anon"

	// anonHashLen is how many hex digits of the hash survive into the
	// anonymous identity.
	anonHashLen = 12
)

// explicitKeys is the ordered priority list of payload fields accepted
// as an explicit session identity. The first present non-empty value
// wins. Matching is case-sensitive and values are used verbatim.
var explicitKeys = []string{
	"sessionId",
	"conversationId",
	"session_id",
	"session",
	"id",
	"user_id",
}

// Resolve returns the session identity for a request: the explicit
// payload field when present, otherwise an anonymous identity derived
// from remoteAddr and userAgent.
func Resolve(payload map[string]any, remoteAddr, userAgent string) string {
	if id := FromPayload(payload); id != "" {
		return id
	}
	return Derive(remoteAddr, userAgent)
}

// FromPayload scans the explicit field priority list and returns the
// first present non-empty value, stringified. Returns "" when no field
// matches.
func FromPayload(payload map[string]any) string {
	for _, key := range explicitKeys {
		v, ok := payload[key]
		if !ok {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

// Derive builds a deterministic anonymous identity from connection
// attributes. Identical inputs always produce identical identities;
// there is no randomness. The port is stripped from remoteAddr so the
// identity survives reconnects from the same host.
func Derive(remoteAddr, userAgent string) string {
	host := hostOnly(remoteAddr)
	if host == "" && userAgent == "" {
		return Fallback
	}
	sum := sha1.Sum([]byte(host + userAgent))
	return AnonPrefix + hex.EncodeToString(sum[:])[:anonHashLen]
}

// ForTelegram qualifies a Telegram chat id so bot conversations can
// never collide with web session ids in the shared memory store.
func ForTelegram(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// hostOnly strips the port from a host:port address. Addresses without
// a port pass through unchanged.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// stringify converts the JSON-decoded payload value types to their
// string form. Unsupported types (objects, arrays, null, booleans) are
// not identities and yield "".
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		// encoding/json decodes all numbers as float64. Integral
		// values render without a decimal point.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}
