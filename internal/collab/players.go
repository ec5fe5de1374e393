package collab

import (
	"context"
	"strings"
	"time"

	logx "joinmotd/pkg/logx"
)

// Commander runs one console command and returns its response.
type Commander interface {
	Execute(ctx context.Context, cmd string) (string, error)
}

// PlayerLister asks the server for "list" over RCON.
type PlayerLister struct {
	cmd     Commander
	timeout time.Duration
	log     logx.Logger
}

func NewPlayerLister(cmd Commander, timeout time.Duration, log logx.Logger) *PlayerLister {
	if log.IsZero() {
		log = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PlayerLister{cmd: cmd, timeout: timeout, log: log.With(logx.String("comp", "players"))}
}

func (p *PlayerLister) OnlinePlayers(ctx context.Context) ([]string, bool) {
	if p == nil || p.cmd == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	out, err := p.cmd.Execute(ctx, "list")
	if err != nil {
		p.log.Debug("list failed", logx.Err(err))
		return nil, false
	}
	return ParsePlayerList(out)
}

// ParsePlayerList reads the vanilla "There are N of a max of M players
// online: a, b" response. An empty list after the colon is valid.
func ParsePlayerList(out string) ([]string, bool) {
	_, names, ok := strings.Cut(out, ":")
	if !ok {
		return nil, false
	}
	var players []string
	for _, n := range strings.Split(names, ",") {
		if n = strings.TrimSpace(n); n != "" {
			players = append(players, n)
		}
	}
	return players, true
}
