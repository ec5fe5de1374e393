package chat

import (
	"regexp"
	"strings"
)

// CodePrefix introduces an in-band style code ("§e", "§l", "§r", ...).
const CodePrefix = "§"

var codePat = regexp.MustCompile(`(?i)§[0-9a-fk-or]`)

// StripCodes removes every recognized style code from s.
func StripCodes(s string) string {
	if !strings.Contains(s, CodePrefix) {
		return s
	}
	return codePat.ReplaceAllString(s, "")
}

// HasCodes reports whether s carries at least one style code.
func HasCodes(s string) bool {
	return codePat.MatchString(s)
}

var ansiCodes = map[byte]string{
	'0': "30",
	'1': "34",
	'2': "32",
	'3': "36",
	'4': "31",
	'5': "35",
	'6': "33",
	'7': "37",
	'8': "90",
	'9': "94",
	'a': "92",
	'b': "96",
	'c': "91",
	'd': "95",
	'e': "93",
	'f': "97",

	'l': "1",
	'm': "9",
	'n': "4",
	'o': "3",
	'r': "0",
}

// ANSI converts style codes to terminal escapes. Codes without a terminal
// equivalent (§k) are dropped. The result always ends with a reset when any
// escape was emitted.
func ANSI(s string) string {
	changed := false
	out := codePat.ReplaceAllStringFunc(s, func(code string) string {
		c := strings.ToLower(code[len(code)-1:])[0]
		if esc, ok := ansiCodes[c]; ok {
			changed = true
			return "\033[" + esc + "m"
		}
		return ""
	})
	if changed {
		out += "\033[0m"
	}
	return out
}
