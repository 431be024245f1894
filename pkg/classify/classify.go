// Package classify splits assistant plain text into dialogue and narration
// blocks for display grouping. The output is advisory: a misclassified block
// renders with the wrong styling, nothing more, so the engine never branches
// on it.
package classify

import "strings"

// Kind labels a classified block.
type Kind string

const (
	Dialogue  Kind = "dialogue"
	Narration Kind = "narration"
)

// Block is one contiguous run of text with a single kind.
type Block struct {
	Kind Kind
	Text string
}

// Classifier turns assistant text into ordered display blocks. It must be a
// pure function of its input.
type Classifier func(text string) []Block

// Split is the default classifier. Quoted spans and lines that look like
// spoken lines are dialogue; asterisk-wrapped spans and everything else are
// narration. Paragraphs are classified independently.
func Split(text string) []Block {
	paragraphs := strings.Split(text, "\n\n")
	blocks := make([]Block, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		blocks = append(blocks, splitParagraph(p)...)
	}
	return coalesce(blocks)
}

func splitParagraph(p string) []Block {
	// Asterisk-wrapped paragraphs are stage direction.
	if strings.HasPrefix(p, "*") && strings.HasSuffix(p, "*") && len(p) > 2 {
		return []Block{{Kind: Narration, Text: strings.Trim(p, "*")}}
	}

	var blocks []Block
	var current strings.Builder
	currentKind := Narration
	inQuote := false

	flush := func() {
		txt := strings.TrimSpace(current.String())
		if txt != "" {
			blocks = append(blocks, Block{Kind: currentKind, Text: txt})
		}
		current.Reset()
	}

	for _, r := range p {
		switch r {
		case '"', '“', '”':
			if inQuote {
				current.WriteRune('"')
				flush()
				inQuote = false
				currentKind = Narration
			} else {
				flush()
				inQuote = true
				currentKind = Dialogue
				current.WriteRune('"')
			}
		default:
			current.WriteRune(r)
		}
	}
	// An unterminated quote still counts as dialogue.
	flush()

	if len(blocks) == 0 {
		return []Block{{Kind: Narration, Text: p}}
	}
	return blocks
}

// coalesce merges adjacent blocks of the same kind.
func coalesce(in []Block) []Block {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, b := range in[1:] {
		last := &out[len(out)-1]
		if b.Kind == last.Kind {
			last.Text += " " + b.Text
		} else {
			out = append(out, b)
		}
	}
	return out
}
