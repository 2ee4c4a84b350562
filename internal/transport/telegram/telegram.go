// Package telegram is a session.Channel backed by a Telegram bot.
package telegram

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	tele "gopkg.in/telebot.v4"

	"horoscopebot/internal/runtime/supervisor"
	"horoscopebot/internal/session"
	logx "horoscopebot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// APIURL overrides the Bot API endpoint (tests).
	APIURL string
}

// Channel connects with the bot token; Start fails when the token is rejected.
type Channel struct {
	cfg Config
	log logx.Logger

	mu     sync.Mutex
	bot    *tele.Bot
	sup    *supervisor.Supervisor
	events chan<- session.Event
}

func New(cfg Config, log logx.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Channel{cfg: cfg, log: log}, nil
}

func (c *Channel) Start(ctx context.Context, events chan<- session.Event) error {
	c.mu.Lock()
	if c.bot != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// NewBot calls getMe, which doubles as the credential check.
	b, err := tele.NewBot(tele.Settings{
		URL:    c.cfg.APIURL,
		Token:  c.cfg.Token,
		Poller: &tele.LongPoller{Timeout: c.cfg.PollTimeout},
		OnError: func(err error, _ tele.Context) {
			c.log.Warn("telegram error", logx.Err(err))
		},
	})
	if err != nil {
		return errors.Wrap(err, "telegram getMe")
	}

	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(c.log))
	c.mu.Lock()
	c.bot = b
	c.sup = sup
	c.events = events
	c.mu.Unlock()

	c.log.Info("telegram bot authorized", logx.String("username", b.Me.Username))
	c.emit(session.Authenticated())
	c.emit(session.ReadyEvent())

	sup.Go0("telebot.stop_on_cancel", func(cctx context.Context) {
		<-cctx.Done()
		b.Stop()
	})
	sup.Go0("telebot.poll", func(context.Context) {
		c.log.Debug("polling started")
		// Start blocks until Stop() is called.
		b.Start()
		c.log.Debug("polling stopped")
		c.emit(session.DisconnectedEvent("polling stopped"))
	})
	return nil
}

// emit never blocks; a full or abandoned event stream drops the event.
func (c *Channel) emit(ev session.Event) {
	c.mu.Lock()
	out := c.events
	c.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- ev:
	default:
		c.log.Warn("session event dropped", logx.String("event", ev.Kind.String()))
	}
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	sup := c.sup
	c.sup = nil
	c.events = nil
	c.mu.Unlock()
	if sup == nil {
		return nil
	}

	sup.Cancel()
	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Send delivers text to the numeric chat id in to, split into API-sized chunks.
// Markdown is tried first; text the API refuses to parse is resent as plain text.
func (c *Channel) Send(ctx context.Context, to, text string) error {
	c.mu.Lock()
	b := c.bot
	c.mu.Unlock()
	if b == nil {
		return errors.New("telegram channel not started")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "telegram recipient %q", to)
	}
	chat := &tele.Chat{ID: id}

	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := b.Send(chat, chunk, &tele.SendOptions{ParseMode: tele.ModeMarkdown, DisableWebPagePreview: true})
		if err != nil && isParseError(err) {
			c.log.Debug("markdown rejected; resending as plain text", logx.Err(err))
			_, err = b.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func isParseError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}

const textLimit = 4000

// splitText splits long messages, preferring newline boundaries.
func splitText(s string, limit int) []string {
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
				// avoid extremely small chunks
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
