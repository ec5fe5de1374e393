package chat

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseColor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{"yellow", ColorYellow, false},
		{" Dark_Gray ", ColorDarkGray, false},
		{"e", ColorYellow, false},
		{"6", ColorGold, false},
		{"", ColorNone, false},
		{"pink", ColorNone, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseColor(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Fatalf("ParseColor(%q)=%q,%v", tt.in, got, err)
			}
		})
	}
}

func TestParseClickAction(t *testing.T) {
	t.Parallel()
	tests := map[string]ClickAction{
		"run_command": ClickRunCommand,
		"runCommand":  ClickRunCommand,
		"suggest":     ClickSuggestCommand,
		"copy":        ClickCopyClipboard,
		"open-url":    ClickOpenURL,
	}
	for in, want := range tests {
		if got, err := ParseClickAction(in); err != nil || got != want {
			t.Fatalf("ParseClickAction(%q)=%q,%v", in, got, err)
		}
	}
	if _, err := ParseClickAction("teleport"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseStyles(t *testing.T) {
	t.Parallel()
	st, err := ParseStyles([]string{"bold", "Underline"})
	if err != nil || st != StyleBold|StyleUnderlined {
		t.Fatalf("styles=%v err=%v", st, err)
	}
	if _, err := ParseStyles([]string{"blink"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCodes(t *testing.T) {
	t.Parallel()
	if got := StripCodes("§eHello §lWorld§r"); got != "Hello World" {
		t.Fatalf("StripCodes=%q", got)
	}
	if !HasCodes("a§Eb") || HasCodes("a§zb") {
		t.Fatalf("HasCodes mismatch")
	}
	if got := ANSI("§6hi"); got != "\033[33mhi\033[0m" {
		t.Fatalf("ANSI=%q", got)
	}
	if got := ANSI("plain"); got != "plain" {
		t.Fatalf("ANSI without codes=%q", got)
	}
}

func TestPlainAndLegacy(t *testing.T) {
	t.Parallel()
	m := Join(" ", Text("Welcome"), Text("§eSteve").WithColor(ColorGold))
	if got := m.PlainString(); got != "Welcome Steve" {
		t.Fatalf("PlainString=%q", got)
	}
	if got := Text("hi").WithColor(ColorGold).LegacyString(); got != "§6hi§r" {
		t.Fatalf("LegacyString=%q", got)
	}
	if !Concat(Text(""), Text("")).IsEmpty() || Text("x").IsEmpty() {
		t.Fatalf("IsEmpty mismatch")
	}
}

func TestMarshalJSON(t *testing.T) {
	t.Parallel()
	m := Text("hi").
		WithColor(ColorGold).
		WithStyles(StyleBold).
		WithClick(ClickOpenURL, "https://example.com").
		WithHover(Text("tip"))
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	for _, want := range []string{
		`"text":"hi"`,
		`"color":"gold"`,
		`"bold":true`,
		`"clickEvent":{"action":"open_url","value":"https://example.com"}`,
		`"hoverEvent":{"action":"show_text","contents":{"text":"tip"}}`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("json %s missing %s", got, want)
		}
	}
	if strings.Contains(got, "italic") {
		t.Fatalf("unset style encoded: %s", got)
	}
}
