// Package markup splits template lines into literal text and %...% escape spans.
package markup

import (
	"strings"
	"unicode"
)

const (
	Delim        = '%'
	CommentMark  = '#'
	escapeMarker = '\\'
)

// Span is one %...% escape with its delimiters.
type Span struct {
	// Content is the raw text between the delimiters (untrimmed).
	Content string
	// Offset is the byte offset of the opening delimiter in the parsed line.
	Offset int
}

// Raw returns the span as written, delimiters included.
func (s Span) Raw() string {
	return string(Delim) + s.Content + string(Delim)
}

// Line is a parsed template line.
//
// Invariant: len(Literals) == len(Spans)+1, and interleaving
// Literals[0], Spans[0].Raw(), Literals[1], ... reproduces the input.
type Line struct {
	Literals []string
	Spans    []Span
}

func (l Line) String() string {
	var b strings.Builder
	for i, lit := range l.Literals {
		b.WriteString(lit)
		if i < len(l.Spans) {
			b.WriteString(l.Spans[i].Raw())
		}
	}
	return b.String()
}

// Parse scans line left to right, pairing each '%' with the nearest following
// '%' (shortest match). A span may contain spaces but no other whitespace; if
// a forbidden character appears before the closing delimiter, the opening '%'
// is kept as literal text and scanning resumes after it.
func Parse(line string) Line {
	out := Line{}
	var lit strings.Builder
	i := 0
	for i < len(line) {
		if line[i] != Delim {
			lit.WriteByte(line[i])
			i++
			continue
		}
		end, ok := closing(line, i+1)
		if !ok {
			lit.WriteByte(line[i])
			i++
			continue
		}
		out.Literals = append(out.Literals, lit.String())
		lit.Reset()
		out.Spans = append(out.Spans, Span{Content: line[i+1 : end], Offset: i})
		i = end + 1
	}
	out.Literals = append(out.Literals, lit.String())
	return out
}

func closing(line string, from int) (int, bool) {
	for j, r := range line[from:] {
		if r == Delim {
			return from + j, true
		}
		if r != ' ' && unicode.IsSpace(r) {
			return 0, false
		}
	}
	return 0, false
}

// Unescape resolves "\#" to "#" and reports whether line is a full-line
// comment. Only an unescaped '#' in the first position makes a comment; the
// unescape pass runs first so "\#tag" renders as "#tag".
func Unescape(line string) (text string, comment bool) {
	if line != "" && line[0] == CommentMark {
		return "", true
	}
	if !strings.ContainsRune(line, escapeMarker) {
		return line, false
	}
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		if line[i] == escapeMarker && i+1 < len(line) && line[i+1] == CommentMark {
			b.WriteByte(CommentMark)
			i++
			continue
		}
		b.WriteByte(line[i])
	}
	return b.String(), false
}

// SplitLines splits a template into lines, accepting "\n" and "\r\n". One
// trailing line break ends the last line instead of opening an empty one, so
// YAML block scalars do not add a blank chat line.
func SplitLines(format string) []string {
	format = strings.ReplaceAll(format, "\r\n", "\n")
	format = strings.TrimSuffix(format, "\n")
	return strings.Split(format, "\n")
}
