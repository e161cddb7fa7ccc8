package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PatternContext supplies the values substituted into a virtual file's
// FilenamePattern (spec §4.4): {PARTNER, VIRTUAL, TRANSFER_ID, DATE, TIME,
// TIMESTAMP, YEAR, MONTH, DAY, UUID}. Non-recognized placeholders are left
// literal.
type PatternContext struct {
	Partner    string
	Virtual    string
	TransferID string
	Now        time.Time
}

// ExpandPattern substitutes every recognized placeholder in pattern.
// UUID is generated fresh per call so repeated expansions of the same
// pattern never collide.
func ExpandPattern(pattern string, ctx PatternContext) string {
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	replacer := strings.NewReplacer(
		"{PARTNER}", ctx.Partner,
		"{VIRTUAL}", ctx.Virtual,
		"{TRANSFER_ID}", ctx.TransferID,
		"{DATE}", now.Format("20060102"),
		"{TIME}", now.Format("150405"),
		"{TIMESTAMP}", fmt.Sprintf("%d", now.UnixMilli()),
		"{YEAR}", now.Format("2006"),
		"{MONTH}", now.Format("01"),
		"{DAY}", now.Format("02"),
		"{UUID}", uuid.NewString(),
	)
	return replacer.Replace(pattern)
}

// DefaultReceivePath synthesizes the fallback path used in non-strict mode
// when a virtual file has no registered record (spec §4.4).
func DefaultReceivePath(receiveDir, virtual string, now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	return fmt.Sprintf("%s/%s_%d", strings.TrimRight(receiveDir, "/"), virtual, now.UnixMilli())
}
