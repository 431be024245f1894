// Package sanitize cleans markup-bearing message content before display.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer returns markup that is safe to hand to the rendering layer. The
// engine routes every message body containing markup-like syntax through one
// of these; it never bypasses it.
type Sanitizer interface {
	Sanitize(raw string) string
}

// Policy wraps a bluemonday allowlist tuned for chat message bodies:
// inline formatting and line breaks only, no links, no media, no attributes.
type Policy struct {
	policy *bluemonday.Policy
}

// NewPolicy builds the default message-body policy.
func NewPolicy() *Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "em", "strong", "u", "s", "br", "p", "blockquote", "code", "pre")
	return &Policy{policy: p}
}

// Sanitize strips everything the policy does not allow.
func (p *Policy) Sanitize(raw string) string {
	return p.policy.Sanitize(raw)
}

// HasMarkup reports whether content looks like it carries markup and
// therefore must pass through a Sanitizer before display.
func HasMarkup(content string) bool {
	return strings.ContainsAny(content, "<>")
}
