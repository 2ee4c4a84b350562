package app

import (
	"strings"

	"github.com/cockroachdb/errors"

	"horoscopebot/internal/config"
	"horoscopebot/internal/content"
	"horoscopebot/internal/delivery"
	"horoscopebot/internal/observability/metrics"
	"horoscopebot/internal/session"
	"horoscopebot/internal/transport/telegram"
	"horoscopebot/internal/transport/whatsapp"
	logx "horoscopebot/pkg/logx"
)

// BuildLoader returns the page loader selected by content.driver.
func BuildLoader(cfg *config.Config) content.Loader {
	ct := cfg.Content
	nav := config.MustDuration(ct.NavigationTimeout, config.DefaultNavigationTimeout)
	elem := config.MustDuration(ct.ElementTimeout, config.DefaultElementTimeout)

	if ct.Driver == "http" {
		return content.NewHTTPLoader(nil, ct.UserAgent, nav)
	}
	return content.NewBrowserLoader(content.BrowserOptions{
		ExecPath:          strings.TrimSpace(ct.ChromePath),
		UserAgent:         ct.UserAgent,
		NavigationTimeout: nav,
		ElementTimeout:    elem,
	})
}

// BuildFetcher wires the configured loader into a content.Fetcher.
func BuildFetcher(cfg *config.Config, log logx.Logger, rec metrics.Recorder) *content.Fetcher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return content.NewFetcher(BuildLoader(cfg), cfg.Content.BaseURL,
		content.WithLogger(log),
		content.WithMetrics(rec),
	)
}

func buildChannel(cfg *config.Config, log logx.Logger) (session.Channel, error) {
	ch := cfg.Channel
	switch ch.Driver {
	case "telegram":
		return telegram.New(telegram.Config{
			Token:       ch.TelegramToken,
			PollTimeout: config.MustDuration(ch.PollTimeout, config.DefaultPollTimeout),
		}, log.With(logx.String("comp", "telegram")))
	case "whatsapp", "":
		if _, err := whatsapp.ParseRecipient(ch.Recipient); err != nil {
			return nil, errors.Wrap(err, "channel.recipient")
		}
		return whatsapp.New(whatsapp.Config{SessionDir: ch.SessionDir}, log.With(logx.String("comp", "whatsapp"))), nil
	default:
		return nil, errors.Newf("unknown channel.driver: %s", ch.Driver)
	}
}

func mapDeliveryConfig(cfg *config.Config) delivery.Config {
	return delivery.Config{
		Recipient:    cfg.Channel.Recipient,
		Subjects:     content.Subjects(cfg.Content.Subjects),
		SubjectDelay: config.MustDuration(cfg.Content.SubjectDelay, config.DefaultSubjectDelay),
		LogMessages:  cfg.Delivery.LogMessages,
	}
}
