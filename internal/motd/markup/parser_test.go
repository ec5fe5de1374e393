package markup

import (
	"slices"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       string
		literals []string
		spans    []string
	}{
		{"plain", "hello", []string{"hello"}, nil},
		{"two spans", "Hi %player%, day %day%!", []string{"Hi ", ", day ", "!"}, []string{"player", "day"}},
		{"unpaired", "100% sure", []string{"100% sure"}, nil},
		{"spaces allowed", "%api: a b%", []string{"", ""}, []string{"api: a b"}},
		{"tab breaks span", "50%\t%x%", []string{"50%\t", ""}, []string{"x"}},
		{"empty span", "%%", []string{"", ""}, []string{""}},
		{"shortest match", "%a%b%c%", []string{"", "b", ""}, []string{"a", "c"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := Parse(tt.in)
			if !slices.Equal(l.Literals, tt.literals) {
				t.Fatalf("literals=%q want %q", l.Literals, tt.literals)
			}
			var spans []string
			for _, s := range l.Spans {
				spans = append(spans, s.Content)
			}
			if !slices.Equal(spans, tt.spans) {
				t.Fatalf("spans=%q want %q", spans, tt.spans)
			}
			if l.String() != tt.in {
				t.Fatalf("round trip %q != %q", l.String(), tt.in)
			}
		})
	}
}

func TestSpanOffset(t *testing.T) {
	t.Parallel()
	l := Parse("ab%x%")
	if len(l.Spans) != 1 || l.Spans[0].Offset != 2 || l.Spans[0].Raw() != "%x%" {
		t.Fatalf("spans=%+v", l.Spans)
	}
}

func TestUnescape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		comment bool
	}{
		{"# a comment", "", true},
		{`\#tag`, "#tag", false},
		{" #not a comment", " #not a comment", false},
		{`path\to`, `path\to`, false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, comment := Unescape(tt.in)
		if got != tt.want || comment != tt.comment {
			t.Fatalf("Unescape(%q)=%q,%v", tt.in, got, comment)
		}
	}
}

func TestSplitLines(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"a\r\nb\nc", []string{"a", "b", "c"}},
		{"a\nb\n", []string{"a", "b"}},
		{"a\r\n", []string{"a"}},
		{"a\n\n", []string{"a", ""}},
		{"", []string{""}},
	}
	for _, tt := range tests {
		if got := SplitLines(tt.in); !slices.Equal(got, tt.want) {
			t.Fatalf("SplitLines(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}
