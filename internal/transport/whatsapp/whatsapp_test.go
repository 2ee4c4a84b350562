package whatsapp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"horoscopebot/internal/session"
	logx "horoscopebot/pkg/logx"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   any
		want session.EventKind
	}{
		{"pair success", &events.PairSuccess{}, session.EventAuthenticated},
		{"connected", &events.Connected{}, session.EventReady},
		{"logged out", &events.LoggedOut{Reason: events.ConnectFailureLoggedOut}, session.EventAuthFailure},
		{"connect failure logged out", &events.ConnectFailure{Reason: events.ConnectFailureLoggedOut}, session.EventAuthFailure},
		{"connect failure transient", &events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable}, session.EventDisconnected},
		{"temporary ban", &events.TemporaryBan{}, session.EventAuthFailure},
		{"client outdated", &events.ClientOutdated{}, session.EventAuthFailure},
		{"stream replaced", &events.StreamReplaced{}, session.EventDisconnected},
		{"disconnected", &events.Disconnected{}, session.EventDisconnected},
	}
	for _, tc := range cases {
		ev, ok := translate(tc.in)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.want, ev.Kind, tc.name)
	}

	_, ok := translate(&events.Message{})
	assert.False(t, ok)
}

func TestParseRecipient(t *testing.T) {
	t.Parallel()

	cases := map[string]types.JID{
		"34600111222":                types.NewJID("34600111222", types.DefaultUserServer),
		"+34 600-111-222":            types.NewJID("34600111222", types.DefaultUserServer),
		"34600111222@c.us":           types.NewJID("34600111222", types.DefaultUserServer),
		"34600111222@s.whatsapp.net": types.NewJID("34600111222", types.DefaultUserServer),
		"120363000000000000@g.us":    types.NewJID("120363000000000000", types.GroupServer),
	}
	for in, want := range cases {
		got, err := ParseRecipient(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "  ", "maria", "346OO"} {
		_, err := ParseRecipient(bad)
		assert.Error(t, err, bad)
	}
}

func TestSendBeforeStart(t *testing.T) {
	t.Parallel()

	c := New(Config{SessionDir: t.TempDir()}, logx.Nop())
	assert.Error(t, c.Send(context.Background(), "34600111222", "hola"))
	assert.NoError(t, c.Stop(context.Background()))
	assert.Contains(t, c.DSN(), "device.db")
}

func qrItems(items ...whatsmeow.QRChannelItem) <-chan whatsmeow.QRChannelItem {
	ch := make(chan whatsmeow.QRChannelItem, len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return ch
}

func code(c string) whatsmeow.QRChannelItem {
	return whatsmeow.QRChannelItem{Event: whatsmeow.QRChannelEventCode, Code: c}
}

func drain(events chan session.Event) []session.Event {
	var out []session.Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPumpQRRequestsNewCodesAfterTimeout(t *testing.T) {
	t.Parallel()

	events := make(chan session.Event, 8)
	c := New(Config{SessionDir: t.TempDir()}, logx.Nop())
	c.events = events

	var refreshes atomic.Int32
	refresh := func(context.Context) (<-chan whatsmeow.QRChannelItem, error) {
		refreshes.Add(1)
		return qrItems(code("2@second")), nil
	}

	c.pumpQR(context.Background(), qrItems(code("2@first"), whatsmeow.QRChannelTimeout), refresh)

	got := drain(events)
	require.Len(t, got, 2)
	assert.Equal(t, session.QR("2@first"), got[0])
	assert.Equal(t, session.QR("2@second"), got[1])
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestPumpQRPairErrorIsAuthFailure(t *testing.T) {
	t.Parallel()

	events := make(chan session.Event, 8)
	c := New(Config{SessionDir: t.TempDir()}, logx.Nop())
	c.events = events

	c.pumpQR(context.Background(), qrItems(whatsmeow.QRChannelClientOutdated), nil)

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, session.EventAuthFailure, got[0].Kind)
}

func TestPumpQRStopsWhenRefreshOutlivesContext(t *testing.T) {
	t.Parallel()

	events := make(chan session.Event, 8)
	c := New(Config{SessionDir: t.TempDir()}, logx.Nop())
	c.events = events

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	refresh := func(context.Context) (<-chan whatsmeow.QRChannelItem, error) {
		return nil, context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		c.pumpQR(ctx, qrItems(whatsmeow.QRChannelTimeout), refresh)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pumpQR did not return after ctx ended")
	}
	assert.Empty(t, drain(events))
}
