package nodebuild

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/xxh3"

	"github.com/DeusData/docgraph/internal/domain"
)

// DefaultMaxSourceBytes caps the stored source text of one node.
const DefaultMaxSourceBytes = 10 << 20

const truncatedSuffix = "\n... [truncated]"

// normalizeNewlines converts CRLF and lone CR line endings to LF.
func normalizeNewlines(src string) string {
	if !strings.Contains(src, "\r") {
		return src
	}
	src = strings.ReplaceAll(src, "\r\n", "\n")
	return strings.ReplaceAll(src, "\r", "\n")
}

// truncate cuts src to at most maxBytes on a rune boundary and marks the cut.
func truncate(src string, maxBytes int) string {
	if maxBytes <= 0 || len(src) <= maxBytes {
		return src
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(src[cut]) {
		cut--
	}
	return src[:cut] + truncatedSuffix
}

// hashSource returns the hex xxh3-128 digest of src, or nil for blank source.
func hashSource(src string) *string {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	sum := xxh3.HashString128(src).Bytes()
	h := hex.EncodeToString(sum[:])
	return &h
}

func lineCount(src string) int {
	src = strings.TrimSuffix(src, "\n")
	return strings.Count(src, "\n") + 1
}

// normalizeSpan recomputes the end line from the source line count so the
// span always covers exactly the stored text.
func normalizeSpan(span *domain.Span, src string) *domain.Span {
	if span == nil {
		return nil
	}
	out := *span
	if src != "" {
		out.End = out.Start + lineCount(src) - 1
	}
	return &out
}
