package workitemid

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultFallbackPrefix = "WI"

var fallbackRe = regexp.MustCompile(`^[^/0-9]+-\d+-[0-9A-F]{6}$`)

// NewFallback builds a legacy-shaped id (prefix-unixMillis-RAND6) used when the
// store cannot be queried. It never matches the new format, so the id migration
// picks it up later.
func NewFallback(prefix string, now time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || strings.ContainsAny(prefix, "/0123456789") {
		prefix = DefaultFallbackPrefix
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}

func IsFallback(id string) bool {
	return fallbackRe.MatchString(id)
}
