package payment

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// The token field itself and nested structures never participate in signing.
var signExcluded = map[string]struct{}{
	"Token":   {},
	"Receipt": {},
	"DATA":    {},
	"Shops":   {},
}

// secretField is the reserved key the signing secret is injected under.
const secretField = "Password"

// Sign computes the request token: scalar params (minus the denylist) plus the
// secret under the reserved key, keys sorted lexicographically, values
// concatenated, SHA-256, lowercase hex. Booleans stringify as "true"/"false",
// numbers as decimal strings; nil and non-scalar values are skipped. The same
// engine signs outbound calls and authenticates inbound notifications, which
// keeps the two directions symmetric by construction.
func Sign(params map[string]any, secret string) string {
	values := map[string]string{secretField: secret}
	for key, raw := range params {
		if _, excluded := signExcluded[key]; excluded {
			continue
		}
		s, ok := stringifyScalar(raw)
		if !ok {
			continue
		}
		values[key] = s
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(values[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the token over params and compares it to the received one.
func Verify(params map[string]any, token, secret string) bool {
	expected := Sign(params, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

func stringifyScalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		// JSON numbers decode as float64; provider amounts are integral.
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
