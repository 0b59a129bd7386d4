package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransientPrefix marks client-generated ids that have not been confirmed by the server.
const TransientPrefix = "temp-"

const transientEntropyLength = 8

// GenerateTransientID creates a placeholder id for an optimistic message.
// Ids sort by creation time and carry random entropy so two sends in the
// same millisecond still differ.
func GenerateTransientID(now time.Time) string {
	entropy := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%d-%s", TransientPrefix, now.UnixMilli(), entropy[:transientEntropyLength])
}

// IsTransientID reports whether id was generated by this client and is still unconfirmed.
func IsTransientID(id string) bool {
	return strings.HasPrefix(id, TransientPrefix)
}

// NumericID parses a confirmed message id. Transient and malformed ids return false.
func NumericID(id string) (int64, bool) {
	if id == "" || IsTransientID(id) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// OnePast returns the cursor that makes a backward page include targetID itself.
func OnePast(targetID string) (string, bool) {
	n, ok := NumericID(targetID)
	if !ok {
		return "", false
	}
	return strconv.FormatInt(n+1, 10), true
}
