// Package whatsapp is a session.Channel backed by a linked WhatsApp device.
//
// The device keys live in a SQLite database under the session directory, so a
// paired device reconnects on restart without a new QR scan.
package whatsapp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"horoscopebot/internal/runtime/supervisor"
	"horoscopebot/internal/session"
	logx "horoscopebot/pkg/logx"
)

const deviceDBName = "device.db"

type Config struct {
	SessionDir string
}

type Channel struct {
	cfg Config
	log logx.Logger

	mu        sync.Mutex
	client    *whatsmeow.Client
	container *sqlstore.Container
	sup       *supervisor.Supervisor
	events    chan<- session.Event
}

func New(cfg Config, log logx.Logger) *Channel {
	if strings.TrimSpace(cfg.SessionDir) == "" {
		cfg.SessionDir = "./.wa_session"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Channel{cfg: cfg, log: log}
}

// DSN returns the sqlite address of the device store.
func (c *Channel) DSN() string {
	return "file:" + filepath.Join(c.cfg.SessionDir, deviceDBName) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (c *Channel) Start(ctx context.Context, events chan<- session.Event) error {
	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := os.MkdirAll(c.cfg.SessionDir, 0o700); err != nil {
		return errors.Wrap(err, "create session dir")
	}

	zl := c.log.Zerolog()
	container, err := sqlstore.New(ctx, "sqlite", c.DSN(), waLog.Zerolog(zl.With().Str("comp", "whatsmeow.db").Logger()))
	if err != nil {
		return errors.Wrap(err, "open device store")
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return errors.Wrap(err, "load device")
	}

	client := whatsmeow.NewClient(device, waLog.Zerolog(zl.With().Str("comp", "whatsmeow").Logger()))
	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(c.log))

	c.mu.Lock()
	c.client = client
	c.container = container
	c.sup = sup
	c.events = events
	c.mu.Unlock()

	client.AddEventHandler(c.handle)

	if client.Store.ID == nil {
		qrCh, err := client.GetQRChannel(sup.Context())
		if err != nil {
			return errors.Wrap(err, "qr channel")
		}
		sup.Go0("whatsapp.qr", func(cctx context.Context) { c.pumpQR(cctx, qrCh, newQRChannel(client)) })
		c.log.Info("no paired device; waiting for qr scan")
	} else {
		c.log.Info("restoring paired device", logx.String("jid", client.Store.ID.String()))
	}

	if err := client.Connect(); err != nil {
		return errors.Wrap(err, "connect")
	}
	return nil
}

// qrRefreshRetry is the pause before retrying a failed QR channel refresh.
var qrRefreshRetry = 30 * time.Second

// qrSource opens a fresh QR channel and reconnects the client.
type qrSource func(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)

func newQRChannel(client *whatsmeow.Client) qrSource {
	return func(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
		client.Disconnect()
		qrCh, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "qr channel")
		}
		if err := client.Connect(); err != nil {
			return nil, errors.Wrap(err, "reconnect")
		}
		return qrCh, nil
	}
}

// pumpQR forwards pairing codes until the device is paired or ctx ends. When
// the server runs out of codes a new batch is requested; only pairing errors
// are reported as authentication failures.
func (c *Channel) pumpQR(ctx context.Context, qrCh <-chan whatsmeow.QRChannelItem, refresh qrSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-qrCh:
			if !ok {
				return
			}
			switch item.Event {
			case whatsmeow.QRChannelEventCode:
				c.emit(session.QR(item.Code))
			case whatsmeow.QRChannelSuccess.Event:
				// PairSuccess arrives through the event handler.
			case whatsmeow.QRChannelTimeout.Event:
				c.log.Info("qr codes expired without a scan; requesting new ones")
				next, ok := c.refreshQR(ctx, refresh)
				if !ok {
					return
				}
				qrCh = next
			default:
				reason := item.Event
				if item.Error != nil {
					reason = item.Error.Error()
				}
				c.emit(session.AuthFailure(reason))
			}
		}
	}
}

func (c *Channel) refreshQR(ctx context.Context, refresh qrSource) (<-chan whatsmeow.QRChannelItem, bool) {
	for {
		qrCh, err := refresh(ctx)
		if err == nil {
			return qrCh, true
		}
		c.log.Warn("qr refresh failed; retrying", logx.Duration("in", qrRefreshRetry), logx.Err(err))
		t := time.NewTimer(qrRefreshRetry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, false
		case <-t.C:
		}
	}
}

func (c *Channel) handle(evt any) {
	if ev, ok := translate(evt); ok {
		c.emit(ev)
	}
}

// translate maps whatsmeow events onto session events.
func translate(evt any) (session.Event, bool) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		return session.Authenticated(), true
	case *events.Connected:
		return session.ReadyEvent(), true
	case *events.LoggedOut:
		return session.AuthFailure("logged out: " + e.Reason.String()), true
	case *events.ConnectFailure:
		if e.Reason.IsLoggedOut() {
			return session.AuthFailure("connect failure: " + e.Reason.String()), true
		}
		return session.DisconnectedEvent("connect failure: " + e.Reason.String()), true
	case *events.TemporaryBan:
		return session.AuthFailure("temporary ban: " + e.String()), true
	case *events.ClientOutdated:
		return session.AuthFailure("client outdated"), true
	case *events.StreamReplaced:
		return session.DisconnectedEvent("stream replaced"), true
	case *events.Disconnected:
		return session.DisconnectedEvent("connection lost"), true
	}
	return session.Event{}, false
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

func (c *Channel) Send(ctx context.Context, to, text string) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return errors.New("whatsapp channel not started")
	}
	jid, err := ParseRecipient(to)
	if err != nil {
		return err
	}
	resp, err := client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return errors.Wrapf(err, "send to %s", jid.String())
	}
	c.log.Debug("message sent", logx.String("to", jid.String()), logx.String("id", string(resp.ID)))
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	client, container, sup := c.client, c.container, c.sup
	c.client, c.container, c.sup, c.events = nil, nil, nil, nil
	c.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	var errs error
	if sup != nil {
		if err := sup.Stop(ctx); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	if container != nil {
		if err := container.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "close device store"))
		}
	}
	return errs
}

// ParseRecipient accepts a full JID ("34600111222@s.whatsapp.net"), the legacy
// "@c.us" form, or a bare phone number with optional "+" and separators.
func ParseRecipient(to string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return types.JID{}, errors.New("empty recipient")
	}
	if user, ok := strings.CutSuffix(to, "@c.us"); ok {
		to = user
	}
	if strings.Contains(to, "@") {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.JID{}, errors.Wrapf(err, "recipient %q", to)
		}
		return jid, nil
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		if r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' {
			return -1
		}
		return 'x'
	}, to)
	if digits == "" || strings.ContainsRune(digits, 'x') {
		return types.JID{}, errors.Newf("recipient %q is not a phone number or jid", to)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
