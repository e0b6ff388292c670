package ingest

import "strings"

const (
	defaultMaxChunkChars = 1500
	minChunkChars        = 40
)

// Chunker splits extracted document text into index-sized pieces.
// Paragraphs are the unit of meaning; adjacent paragraphs are merged
// until the size cap, and oversized paragraphs are split on sentence
// boundaries as a fallback.
type Chunker struct {
	MaxChars int
}

// NewChunker returns a Chunker with the given size cap, or the default
// when maxChars is not positive.
func NewChunker(maxChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = defaultMaxChunkChars
	}
	return &Chunker{MaxChars: maxChars}
}

// Split breaks text into chunks. Whitespace-only input yields no chunks.
// Fragments shorter than a few words are merged into their neighbor
// rather than indexed alone.
func (c *Chunker) Split(text string) []string {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, p := range paragraphs {
		if len(p) > c.MaxChars {
			flush()
			chunks = append(chunks, c.splitLong(p)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > c.MaxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	// Merge a trailing fragment into the previous chunk so tiny tails
	// don't become their own index entries.
	if n := len(chunks); n > 1 && len(chunks[n-1]) < minChunkChars {
		chunks[n-2] = chunks[n-2] + "\n\n" + chunks[n-1]
		chunks = chunks[:n-1]
	}

	return chunks
}

// splitLong breaks an oversized paragraph on sentence endings, hard
// slicing only when a single sentence exceeds the cap.
func (c *Chunker) splitLong(p string) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(p) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > c.MaxChars {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if len(sentence) > c.MaxChars {
			for len(sentence) > c.MaxChars {
				chunks = append(chunks, sentence[:c.MaxChars])
				sentence = sentence[c.MaxChars:]
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '.', '!', '?':
			end := i + 1
			for end < len(p) && (p[end] == ' ' || p[end] == '\n') {
				end++
			}
			if s := strings.TrimSpace(p[start:end]); s != "" {
				out = append(out, s)
			}
			start = end
			i = end - 1
		}
	}
	if s := strings.TrimSpace(p[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
