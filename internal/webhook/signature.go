package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const timestampSkew = 300 * time.Second

// verifyResult reports what a signature check found, never a hard failure:
// the caller decides whether a non-empty Reasons list should drop the
// request or merely be logged.
type verifyResult struct {
	Valid   bool
	Reasons []string
}

func (r *verifyResult) fail(reason string) {
	r.Reasons = append(r.Reasons, reason)
}

// secretSet is the current shared secret plus an optional still-valid
// previous one, supporting overlap during key rotation.
type secretSet struct {
	current  string
	previous string
	hasPrev  bool
}

// verifySignature checks the timestamp skew guard,
// candidate digest generation over both the bare body and the legacy
// "timestamp.body" form, against both the current and (if in its overlap
// window) previous secret, encoded as both base64 and hex, matched in
// constant time against whatever the caller presented.
func verifySignature(secrets secretSet, timestampHeader, signatureHeader string, body []byte) verifyResult {
	var result verifyResult

	if timestampHeader != "" {
		ts, err := strconv.ParseInt(timestampHeader, 10, 64)
		if err != nil || absDuration(time.Unix(ts, 0), time.Now()) > timestampSkew {
			result.fail("stale")
		}
	} else {
		result.fail("stale")
	}

	provided, _ := parseSignatureHeader(signatureHeader)
	if provided == "" {
		result.fail("mismatch")
		return result
	}

	candidates := candidateDigests(secrets, timestampHeader, body)
	matched := false
	for _, c := range candidates {
		if constantTimeEqual(provided, c) {
			matched = true
			break
		}
	}
	if !matched {
		result.fail("mismatch")
	}

	result.Valid = len(result.Reasons) == 0
	return result
}

// parseSignatureHeader accepts either a bare signature value or the
// structured form "signature=<value>,algorithm=HMAC-SHA256".
func parseSignatureHeader(header string) (value, algorithm string) {
	header = strings.TrimSpace(header)
	if !strings.Contains(header, "=") || !strings.Contains(header, ",") {
		return header, "HMAC-SHA256"
	}
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "signature":
			value = strings.TrimSpace(kv[1])
		case "algorithm":
			algorithm = strings.TrimSpace(kv[1])
		}
	}
	if value == "" {
		return header, "HMAC-SHA256"
	}
	return value, algorithm
}

func candidateDigests(secrets secretSet, timestamp string, body []byte) []string {
	keys := []string{secrets.current}
	if secrets.hasPrev && secrets.previous != "" {
		keys = append(keys, secrets.previous)
	}

	var candidates []string
	for _, key := range keys {
		if key == "" {
			continue
		}
		bodyDigest := hmacSHA256([]byte(key), body)
		candidates = append(candidates, base64.StdEncoding.EncodeToString(bodyDigest), hex.EncodeToString(bodyDigest))

		if timestamp != "" {
			legacyDigest := hmacSHA256([]byte(key), []byte(timestamp+"."+string(body)))
			candidates = append(candidates, base64.StdEncoding.EncodeToString(legacyDigest), hex.EncodeToString(legacyDigest))
		}
	}
	return candidates
}

func hmacSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func absDuration(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
