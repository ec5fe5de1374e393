package rcon

import (
	"context"
	"fmt"
	"io"
	"sync"

	"joinmotd/internal/motd/chat"
)

// Console writes greetings as ANSI text. It backs -preview and the console
// pseudo player.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) Tell(_ context.Context, player string, msg chat.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "[to %s]\n%s\n", player, msg.ANSI())
	return err
}

// ConsolePlayer is the name commands use for the server console. '@' is not
// allowed in player names, so no real player can collide with it.
const ConsolePlayer = "@console"

// Router sends to the console for ConsolePlayer and over RCON otherwise.
type Router struct {
	Remote  interface{ Tell(context.Context, string, chat.Message) error }
	Console *Console
}

func (r Router) Tell(ctx context.Context, player string, msg chat.Message) error {
	if player == ConsolePlayer && r.Console != nil {
		return r.Console.Tell(ctx, player, msg)
	}
	return r.Remote.Tell(ctx, player, msg)
}
