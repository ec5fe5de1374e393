// Package telegram is the operator console: owners run the join MOTD
// commands as bot commands and receive log alerts in a chat.
package telegram

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"joinmotd/internal/commands"
	"joinmotd/internal/motd/chat"
	rtsup "joinmotd/internal/runtime/supervisor"
	logx "joinmotd/pkg/logx"
)

// CallerName is the player name commands see when run from Telegram. Like
// rcon.ConsolePlayer it cannot be a real player name.
const CallerName = "@telegram"

type Config struct {
	Token       string
	Owners      []int64
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
	// Offline skips the getMe call; used by tests.
	Offline bool
}

// Runner executes a command for a caller. *commands.Handler implements it.
type Runner interface {
	Run(ctx context.Context, caller commands.Caller, prefix string, args []string) []chat.Message
}

// StatusFunc renders the /motd_status reply.
type StatusFunc func() string

type Console struct {
	cfg    Config
	log    logx.Logger
	bot    *tele.Bot
	runner Runner
	status StatusFunc

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	menuMu   sync.Mutex
	menuHash uint64
}

// botCommand is one /motd_* command.
type botCommand struct {
	name string
	sub  string
	desc string
}

var botCommands = []botCommand{
	{"motd_help", commands.CmdHelp, "Show command help"},
	{"motd_status", "", "Daemon status"},
	{"motd_reload", commands.CmdReload, "Reload schemes and translations"},
	{"motd_list", commands.CmdList, "List schemes by priority"},
	{"motd_info", commands.CmdInfo, "Show scheme details: /motd_info <scheme>"},
	{"motd_preview", commands.CmdPreview, "Render a scheme: /motd_preview [scheme]"},
	{"motd_seen", commands.CmdSeen, "Join statistics: /motd_seen <player>"},
}

func New(cfg Config, runner Runner, status StatusFunc, log logx.Logger) (*Console, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Console{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b, runner: runner, status: status}
	c.registerHandlers()
	return c, nil
}

// Supervisor returns the console's supervisor (nil if not started).
func (c *Console) Supervisor() *rtsup.Supervisor {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.sup
}

func (c *Console) registerHandlers() {
	for _, bc := range botCommands {
		bc := bc
		c.bot.Handle("/"+bc.name, func(tc tele.Context) error {
			var from int64
			if s := tc.Sender(); s != nil {
				from = s.ID
			}
			reply := c.handle(context.Background(), from, bc.name, tc.Args())
			if reply == "" {
				return nil
			}
			for _, chunk := range splitText(reply, textLimit) {
				if err := tc.Send(chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

// handle runs one bot command for the sender and returns the plain reply.
func (c *Console) handle(ctx context.Context, from int64, name string, args []string) string {
	if !c.isOwner(from) {
		c.log.Warn("command from non-owner rejected", logx.Int64("from_id", from), logx.String("cmd", name))
		return "not allowed"
	}
	i := slices.IndexFunc(botCommands, func(bc botCommand) bool { return bc.name == name })
	if i < 0 {
		return ""
	}
	bc := botCommands[i]
	if bc.sub == "" {
		if c.status == nil {
			return "ok"
		}
		return c.status()
	}
	if c.runner == nil {
		return "commands unavailable"
	}
	msgs := c.runner.Run(ctx, commands.Caller{Name: CallerName, Operator: true}, "", append([]string{bc.sub}, args...))
	return chat.Join("\n", msgs...).PlainString()
}

func (c *Console) isOwner(id int64) bool {
	return id != 0 && slices.Contains(c.cfg.Owners, id)
}

func (c *Console) Start(ctx context.Context) error {
	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		return nil
	}
	c.running = true
	c.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(c.log),
		// console failures must not take the daemon down
		rtsup.WithCancelOnError(false),
	)
	sup := c.sup
	c.runMu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(ctx context.Context) {
		<-ctx.Done()
		c.bot.Stop()
	})

	// telebot's Start blocks until Stop. Returning while the context is
	// still live counts as a failure so the loop restarts.
	sup.GoRestart("telebot.poll", func(ctx context.Context) error {
		c.log.Info("polling started")
		c.bot.Start()
		c.log.Info("polling stopped")
		if ctx.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
	)

	sup.Go("menu.update", func(ctx context.Context) error {
		if err := c.UpdateMenuCommands(); err != nil {
			c.log.Warn("menu update failed", logx.Err(err))
		}
		return nil
	})
	return nil
}

func (c *Console) Stop(ctx context.Context) error {
	c.runMu.Lock()
	sup := c.sup
	c.sup = nil
	wasRunning := c.running
	c.running = false
	c.runMu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()
	go c.bot.Stop()

	// Never hold shutdown on a pending long poll.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		c.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// SendAlert posts text to the alert chat, or to the first owner when no chat
// is configured. It implements logx.AlertSender.
func (c *Console) SendAlert(ctx context.Context, text string) error {
	to := c.cfg.ChatID
	if to == 0 && len(c.cfg.Owners) > 0 {
		to = c.cfg.Owners[0]
	}
	if to == 0 {
		return errors.New("telegram: no alert chat configured")
	}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		opt := &tele.SendOptions{ThreadID: c.cfg.ThreadID, DisableWebPagePreview: true}
		if _, err := c.bot.Send(&tele.Chat{ID: to}, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMenuCommands publishes the /motd_* menu. It only calls Telegram
// when the list changed since the last successful call.
func (c *Console) UpdateMenuCommands() error {
	c.menuMu.Lock()
	defer c.menuMu.Unlock()

	h := fnv.New64a()
	cmds := make([]tele.Command, 0, len(botCommands))
	for _, bc := range botCommands {
		h.Write([]byte(bc.name))
		h.Write([]byte{0})
		h.Write([]byte(bc.desc))
		h.Write([]byte{0})
		cmds = append(cmds, tele.Command{Text: bc.name, Description: bc.desc})
	}
	sum := h.Sum64()
	if sum == c.menuHash {
		return nil
	}
	if err := c.bot.SetCommands(cmds); err != nil {
		return err
	}
	c.menuHash = sum
	c.log.Info("menu commands updated", logx.Int("count", len(cmds)))
	return nil
}

const textLimit = 4000

// splitText cuts s into chunks of at most limit runes, preferring newline
// boundaries that leave chunks at least a third full.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
