// Package chat models the styled, interactive text delivered to players.
//
// Message mirrors the Minecraft raw JSON text component closely enough that
// MarshalJSON output can be handed to "tellraw" unchanged.
package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Color string

const (
	ColorNone        Color = ""
	ColorBlack       Color = "black"
	ColorDarkBlue    Color = "dark_blue"
	ColorDarkGreen   Color = "dark_green"
	ColorDarkAqua    Color = "dark_aqua"
	ColorDarkRed     Color = "dark_red"
	ColorDarkPurple  Color = "dark_purple"
	ColorGold        Color = "gold"
	ColorGray        Color = "gray"
	ColorDarkGray    Color = "dark_gray"
	ColorBlue        Color = "blue"
	ColorGreen       Color = "green"
	ColorAqua        Color = "aqua"
	ColorRed         Color = "red"
	ColorLightPurple Color = "light_purple"
	ColorYellow      Color = "yellow"
	ColorWhite       Color = "white"
)

// colorCodes maps each named color to its legacy style code.
var colorCodes = map[Color]byte{
	ColorBlack: '0', ColorDarkBlue: '1', ColorDarkGreen: '2', ColorDarkAqua: '3',
	ColorDarkRed: '4', ColorDarkPurple: '5', ColorGold: '6', ColorGray: '7',
	ColorDarkGray: '8', ColorBlue: '9', ColorGreen: 'a', ColorAqua: 'b',
	ColorRed: 'c', ColorLightPurple: 'd', ColorYellow: 'e', ColorWhite: 'f',
}

// ParseColor accepts a color name ("yellow", "dark_gray") or a single style
// code character ("e", "8").
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ColorNone, nil
	}
	if _, ok := colorCodes[Color(s)]; ok {
		return Color(s), nil
	}
	if len(s) == 1 {
		for c, code := range colorCodes {
			if code == s[0] {
				return c, nil
			}
		}
	}
	return ColorNone, fmt.Errorf("unknown color %q", s)
}

// Code returns the legacy style code for c ("§e"), or "" for ColorNone.
func (c Color) Code() string {
	code, ok := colorCodes[c]
	if !ok {
		return ""
	}
	return CodePrefix + string(code)
}

type Style int

const (
	StyleBold Style = 1 << iota
	StyleItalic
	StyleUnderlined
	StyleStrikethrough
	StyleObfuscated
)

var styleNames = map[string]Style{
	"bold":          StyleBold,
	"italic":        StyleItalic,
	"underlined":    StyleUnderlined,
	"underline":     StyleUnderlined,
	"strikethrough": StyleStrikethrough,
	"obfuscated":    StyleObfuscated,
}

var styleCodes = []struct {
	style Style
	code  string
}{
	{StyleBold, "§l"},
	{StyleItalic, "§o"},
	{StyleUnderlined, "§n"},
	{StyleStrikethrough, "§m"},
	{StyleObfuscated, "§k"},
}

// ParseStyles folds style names into a bit set.
func ParseStyles(names []string) (Style, error) {
	var out Style
	for _, n := range names {
		st, ok := styleNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown style %q", n)
		}
		out |= st
	}
	return out, nil
}

type ClickAction string

const (
	ClickRunCommand     ClickAction = "run_command"
	ClickSuggestCommand ClickAction = "suggest_command"
	ClickCopyClipboard  ClickAction = "copy_to_clipboard"
	ClickOpenURL        ClickAction = "open_url"
)

// ParseClickAction accepts the four host-supported actions, with or without
// underscores ("run_command", "runCommand", "copy").
func ParseClickAction(s string) (ClickAction, error) {
	k := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	switch k {
	case "runcommand", "run", "command":
		return ClickRunCommand, nil
	case "suggestcommand", "suggest":
		return ClickSuggestCommand, nil
	case "copytoclipboard", "copy", "clipboard":
		return ClickCopyClipboard, nil
	case "openurl", "url", "open":
		return ClickOpenURL, nil
	}
	return "", fmt.Errorf("unknown click action %q", s)
}

type ClickEvent struct {
	Action ClickAction
	Value  string
}

// Message is one styled text node with optional children.
type Message struct {
	Text   string
	Color  Color
	Styles Style
	Hover  *Message
	Click  *ClickEvent
	Extra  []Message
}

func Text(s string) Message { return Message{Text: s} }

// Join concatenates parts with sep between them. Empty parts are kept so
// positions stay stable.
func Join(sep string, parts ...Message) Message {
	out := Message{}
	for i, p := range parts {
		if i > 0 && sep != "" {
			out.Extra = append(out.Extra, Text(sep))
		}
		out.Extra = append(out.Extra, p)
	}
	return out
}

// Concat is Join without a separator.
func Concat(parts ...Message) Message { return Join("", parts...) }

func (m Message) WithColor(c Color) Message   { m.Color = c; return m }
func (m Message) WithStyles(s Style) Message  { m.Styles |= s; return m }
func (m Message) WithHover(h Message) Message { m.Hover = &h; return m }
func (m Message) WithClick(a ClickAction, v string) Message {
	m.Click = &ClickEvent{Action: a, Value: v}
	return m
}

// IsEmpty reports whether m renders no visible text.
func (m Message) IsEmpty() bool {
	if m.Text != "" {
		return false
	}
	for _, e := range m.Extra {
		if !e.IsEmpty() {
			return false
		}
	}
	return true
}

// PlainString returns the visible text with style codes removed.
func (m Message) PlainString() string {
	var b strings.Builder
	m.writePlain(&b)
	return StripCodes(b.String())
}

func (m Message) writePlain(b *strings.Builder) {
	b.WriteString(m.Text)
	for _, e := range m.Extra {
		e.writePlain(b)
	}
}

// LegacyString flattens m into a string of style codes + text. Color and
// style of a node apply to its own text and children; "§r" closes the node.
func (m Message) LegacyString() string {
	var b strings.Builder
	m.writeLegacy(&b, "")
	return b.String()
}

func (m Message) writeLegacy(b *strings.Builder, inherited string) {
	prefix := inherited
	if m.Color != ColorNone {
		prefix = m.Color.Code()
	}
	for _, sc := range styleCodes {
		if m.Styles&sc.style != 0 {
			prefix += sc.code
		}
	}
	own := prefix != inherited
	if own {
		b.WriteString(prefix)
	}
	b.WriteString(m.Text)
	for _, e := range m.Extra {
		e.writeLegacy(b, prefix)
		if e.hasFormatting() {
			b.WriteString("§r" + prefix)
		}
	}
	if own && inherited == "" {
		b.WriteString("§r")
	}
}

func (m Message) hasFormatting() bool {
	return m.Color != ColorNone || m.Styles != 0
}

// ANSI renders m for a terminal.
func (m Message) ANSI() string {
	return ANSI(m.LegacyString())
}

func (m Message) String() string { return m.PlainString() }

type jsonHover struct {
	Action   string   `json:"action"`
	Contents *Message `json:"contents"`
}

type jsonClick struct {
	Action ClickAction `json:"action"`
	Value  string      `json:"value"`
}

type jsonMessage struct {
	Text          string     `json:"text"`
	Color         Color      `json:"color,omitempty"`
	Bold          bool       `json:"bold,omitempty"`
	Italic        bool       `json:"italic,omitempty"`
	Underlined    bool       `json:"underlined,omitempty"`
	Strikethrough bool       `json:"strikethrough,omitempty"`
	Obfuscated    bool       `json:"obfuscated,omitempty"`
	ClickEvent    *jsonClick `json:"clickEvent,omitempty"`
	HoverEvent    *jsonHover `json:"hoverEvent,omitempty"`
	Extra         []Message  `json:"extra,omitempty"`
}

// MarshalJSON encodes m as a raw JSON text component.
func (m Message) MarshalJSON() ([]byte, error) {
	jm := jsonMessage{
		Text:          m.Text,
		Color:         m.Color,
		Bold:          m.Styles&StyleBold != 0,
		Italic:        m.Styles&StyleItalic != 0,
		Underlined:    m.Styles&StyleUnderlined != 0,
		Strikethrough: m.Styles&StyleStrikethrough != 0,
		Obfuscated:    m.Styles&StyleObfuscated != 0,
		Extra:         m.Extra,
	}
	if m.Click != nil {
		jm.ClickEvent = &jsonClick{Action: m.Click.Action, Value: m.Click.Value}
	}
	if m.Hover != nil {
		jm.HoverEvent = &jsonHover{Action: "show_text", Contents: m.Hover}
	}
	return json.Marshal(jm)
}
