package store

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/brainmesh/brainmesh-go/pkg/store"
)

// RenderMarkdown turns a hot record into the markdown form used when the
// record is externalized into the active tier.
func RenderMarkdown(rec store.HotRecord) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", rec.Title)
	fmt.Fprintf(&buf, "- kind: %s\n", rec.Kind)
	fmt.Fprintf(&buf, "- status: %s\n", rec.Status)
	fmt.Fprintf(&buf, "- created: %s\n\n", rec.CreatedAt.UTC().Format("2006-01-02 15:04"))
	buf.WriteString(strings.TrimSpace(rec.Body))
	buf.WriteString("\n")
	return buf.Bytes()
}

// ExternalPath builds the logical path an externalized hot record lands at:
// <kind>/<slug>-<short id>.md. The short id keeps distinct records with the
// same title from colliding.
func ExternalPath(rec store.HotRecord) string {
	id := rec.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s/%s-%s.md", rec.Kind, Slugify(rec.Title), id)
}

// Slugify reduces a title to a filesystem-safe slug.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "memory"
	}
	if len(slug) > 48 {
		slug = strings.Trim(slug[:48], "-")
	}
	return slug
}
