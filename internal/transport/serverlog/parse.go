// Package serverlog follows the Minecraft server log and turns interesting
// lines into events: joins, chat commands, the server version and startup.
package serverlog

import (
	"regexp"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindJoin
	KindChat
	KindVersion
	KindStarted
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindChat:
		return "chat"
	case KindVersion:
		return "version"
	case KindStarted:
		return "started"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind    Kind
	Player  string
	Text    string
	Version string
	Line    string
}

// Lines look like "[12:00:00] [Server thread/INFO]: ..." with an optional
// "[minecraft/DedicatedServer]" logger tag after the thread.
const prefix = `^\[[^\]]+\] \[[^\]]+/INFO\](?: \[[^\]]+\])?: `

var (
	joinRe    = regexp.MustCompile(prefix + `([A-Za-z0-9_]{1,16}) joined the game$`)
	chatRe    = regexp.MustCompile(prefix + `(?:\[Not Secure\] )?<([A-Za-z0-9_]{1,16})> (.+)$`)
	versionRe = regexp.MustCompile(prefix + `Starting minecraft server version (\S+)`)
	startedRe = regexp.MustCompile(prefix + `Done \([0-9.,]+s\)!`)
)

// Parse classifies one log line. ok is false for lines of no interest.
func Parse(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	if m := joinRe.FindStringSubmatch(line); m != nil {
		return Event{Kind: KindJoin, Player: m[1], Line: line}, true
	}
	if m := chatRe.FindStringSubmatch(line); m != nil {
		return Event{Kind: KindChat, Player: m[1], Text: m[2], Line: line}, true
	}
	if m := versionRe.FindStringSubmatch(line); m != nil {
		return Event{Kind: KindVersion, Version: m[1], Line: line}, true
	}
	if startedRe.MatchString(line) {
		return Event{Kind: KindStarted, Line: line}, true
	}
	return Event{}, false
}
