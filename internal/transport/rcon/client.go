// Package rcon delivers greetings to players over the Minecraft RCON
// protocol and runs the odd console query ("list").
package rcon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorcon/rcon"

	"joinmotd/internal/motd/chat"
	logx "joinmotd/pkg/logx"
)

var ErrNotConfigured = errors.New("rcon: address not configured")

type Config struct {
	Address     string
	Password    string
	DialTimeout time.Duration
	// Deadline bounds one command round trip.
	Deadline time.Duration
}

// Client keeps one lazily dialed connection. A failed command drops it so
// the next call redials.
type Client struct {
	cfg Config
	log logx.Logger

	mu   sync.Mutex
	conn *rcon.Conn
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 5 * time.Second
	}
	return &Client{cfg: cfg, log: log.With(logx.String("comp", "rcon"))}
}

func (c *Client) dial() (*rcon.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	if strings.TrimSpace(c.cfg.Address) == "" {
		return nil, ErrNotConfigured
	}
	conn, err := rcon.Dial(c.cfg.Address, c.cfg.Password,
		rcon.SetDialTimeout(c.cfg.DialTimeout),
		rcon.SetDeadline(c.cfg.Deadline),
	)
	if err != nil {
		return nil, fmt.Errorf("rcon dial %s: %w", c.cfg.Address, err)
	}
	c.log.Info("rcon connected", logx.String("addr", c.cfg.Address))
	c.conn = conn
	return conn, nil
}

func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Execute runs cmd on the server console. Commands are serialized on the
// single connection. A cancelled ctx closes the connection to unblock the
// round trip.
func (c *Client) Execute(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.dial()
	if err != nil {
		return "", err
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := conn.Execute(cmd)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			c.drop()
			return "", fmt.Errorf("rcon execute: %w", r.err)
		}
		return r.out, nil
	case <-ctx.Done():
		c.drop()
		<-done
		return "", ctx.Err()
	}
}

// Tell sends msg to player with tellraw.
func (c *Client) Tell(ctx context.Context, player string, msg chat.Message) error {
	cmd, err := TellrawCommand(player, msg)
	if err != nil {
		return err
	}
	out, err := c.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	// The server answers tellraw with an empty response unless it failed.
	if out = strings.TrimSpace(out); out != "" {
		c.log.Debug("tellraw response", logx.String("player", player), logx.String("out", out))
		if strings.Contains(out, "No player was found") {
			return fmt.Errorf("tellraw %s: %s", player, out)
		}
	}
	return nil
}

// TellrawCommand builds "tellraw <player> <json>". Player names cannot
// contain whitespace.
func TellrawCommand(player string, msg chat.Message) (string, error) {
	player = strings.TrimSpace(player)
	if player == "" || strings.ContainsAny(player, " \t\r\n") {
		return "", fmt.Errorf("tellraw: invalid player %q", player)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("tellraw: encode: %w", err)
	}
	return "tellraw " + player + " " + string(b), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
	return nil
}
