// Package roomname derives canonical room identifiers and shareable join URLs.
package roomname

import (
	"math/rand"
	"strings"
)

const (
	// Length bounds for a canonical slug.
	MinLength = 3
	MaxLength = 50

	generatedLength = 12
	alphabet        = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Server describes a known conferencing server the widget can be pointed at.
type Server struct {
	Domain      string `json:"domain"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Servers is the fixed ordered list of known conferencing servers. The first
// entry is the default; the rest are fallbacks offered after a failed join.
var Servers = []Server{
	{
		Domain:      "meet.jit.si",
		Name:        "Jitsi Meet (Official)",
		Description: "Official Jitsi server - may have waiting rooms enabled",
	},
	{
		Domain:      "8x8.vc",
		Name:        "8x8 Video Meetings",
		Description: "Alternative Jitsi server by 8x8",
	},
	{
		Domain:      "jitsi.riot.im",
		Name:        "Element Jitsi",
		Description: "Jitsi instance by Element (Matrix)",
	},
}

// ServerByDomain looks up a known server descriptor by its domain.
func ServerByDomain(domain string) (Server, bool) {
	for _, s := range Servers {
		if s.Domain == domain {
			return s, true
		}
	}
	return Server{}, false
}

// Generate produces a random room name. Plain lowercase alphanumerics avoid
// any special character issues; collisions are accepted as a low-probability
// operational risk.
func Generate() string {
	var b strings.Builder
	b.Grow(generatedLength)
	for i := 0; i < generatedLength; i++ {
		b.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return b.String()
}

// Normalize turns arbitrary input into a canonical slug: lowercase, runs of
// non-alphanumerics collapsed to a single hyphen, leading and trailing hyphens
// stripped. Normalize is idempotent.
func Normalize(input string) string {
	lower := strings.ToLower(input)

	var b strings.Builder
	b.Grow(len(lower))
	lastHyphen := false
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// Validate reports whether input normalizes to a slug within the length
// bounds. Empty or all-whitespace input never validates.
func Validate(input string) bool {
	if strings.TrimSpace(input) == "" {
		return false
	}
	n := len(Normalize(input))
	return n >= MinLength && n <= MaxLength
}

// JoinURL builds the shareable meeting URL for a room on a server.
func JoinURL(room, domain string) string {
	return "https://" + domain + "/" + Normalize(room)
}
