package webhook

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"
)

func base64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func TestVerifySignatureAcceptsValidBase64Digest(t *testing.T) {
	secrets := secretSet{current: "topsecret"}
	body := []byte(`{"type":"inventory.update","data":{"product_id":123}}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	digest := hmacSHA256([]byte(secrets.current), body)
	sig := base64Encode(digest)

	result := verifySignature(secrets, ts, sig, body)
	if !result.Valid {
		t.Fatalf("expected valid signature, got reasons %v", result.Reasons)
	}
}

func TestVerifySignatureAcceptsStructuredHeaderForm(t *testing.T) {
	secrets := secretSet{current: "topsecret"}
	body := []byte(`{"type":"sale.update"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	digest := hmacSHA256([]byte(secrets.current), body)
	header := fmt.Sprintf("signature=%s,algorithm=HMAC-SHA256", base64Encode(digest))

	result := verifySignature(secrets, ts, header, body)
	if !result.Valid {
		t.Fatalf("expected valid signature from structured header, got reasons %v", result.Reasons)
	}
}

func TestVerifySignatureAcceptsPreviousSecretDuringRotationOverlap(t *testing.T) {
	secrets := secretSet{current: "new-secret", previous: "old-secret", hasPrev: true}
	body := []byte(`{"type":"customer.update"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	digest := hmacSHA256([]byte("old-secret"), body)
	sig := base64Encode(digest)

	result := verifySignature(secrets, ts, sig, body)
	if !result.Valid {
		t.Fatalf("expected the previous secret to still verify during overlap, got reasons %v", result.Reasons)
	}
}

func TestVerifySignatureFlagsStaleTimestamp(t *testing.T) {
	secrets := secretSet{current: "topsecret"}
	body := []byte(`{"type":"product.update"}`)
	staleTS := fmt.Sprintf("%d", time.Now().Add(-1*time.Hour).Unix())

	digest := hmacSHA256([]byte(secrets.current), body)
	sig := base64Encode(digest)

	result := verifySignature(secrets, staleTS, sig, body)
	if result.Valid {
		t.Fatalf("expected stale timestamp to invalidate the result")
	}
	if !containsStr(result.Reasons, "stale") {
		t.Fatalf("expected reasons to include stale, got %v", result.Reasons)
	}
}

func TestVerifySignatureFlagsMismatch(t *testing.T) {
	secrets := secretSet{current: "topsecret"}
	body := []byte(`{"type":"product.update"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	result := verifySignature(secrets, ts, "not-a-real-signature", body)
	if result.Valid {
		t.Fatalf("expected mismatched signature to invalidate the result")
	}
	if !containsStr(result.Reasons, "mismatch") {
		t.Fatalf("expected reasons to include mismatch, got %v", result.Reasons)
	}
}

func containsStr(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
