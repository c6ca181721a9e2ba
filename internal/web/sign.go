package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Sign returns the URL signature for a message/dispatch pair.
func Sign(key string, messageID, dispatchID uint) string {
	mac := hmac.New(sha256.New, []byte(key))
	fmt.Fprintf(mac, "%d|%d", messageID, dispatchID)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is a valid signature for the pair.
func Verify(key string, messageID, dispatchID uint, sig string) bool {
	return hmac.Equal([]byte(Sign(key, messageID, dispatchID)), []byte(sig))
}

// UnsubscribeURL builds a signed unsubscribe link for a dispatch.
func UnsubscribeURL(base, key string, messageID, dispatchID uint) string {
	return trackingURL(base, "unsubscribe", key, messageID, dispatchID)
}

// PingURL builds a signed tracking pixel link for a dispatch.
func PingURL(base, key string, messageID, dispatchID uint) string {
	return trackingURL(base, "ping", key, messageID, dispatchID)
}

func trackingURL(base, action, key string, messageID, dispatchID uint) string {
	return fmt.Sprintf("%s/messages/%s/%d/%d/%s",
		strings.TrimRight(base, "/"), action, messageID, dispatchID,
		Sign(key, messageID, dispatchID))
}
