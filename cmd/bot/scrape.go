package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"horoscopebot/internal/app"
	"horoscopebot/internal/compose"
	"horoscopebot/internal/config"
	"horoscopebot/internal/content"
	"horoscopebot/internal/task/scheduler"
	logx "horoscopebot/pkg/logx"
)

const sampleRunes = 150

var scrapeCmd = &cobra.Command{
	Use:   "scrape [sign...]",
	Short: "Fetch and extract horoscopes without sending anything",
	Long: `scrape loads the page for each sign, prints what was extracted and then
the daily message that would be sent. Signs default to content.subjects.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadLenient(configPath)
		if err != nil {
			return err
		}
		return scrape(cmd, cfg, args)
	},
}

// loadLenient resolves the config without validating it, so checking
// extraction does not require a recipient or channel credentials.
func loadLenient(path string) (*config.Config, error) {
	cfg, err := config.NewConfigManager(path).Parse()
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg, os.LookupEnv)
	config.ApplyDefaults(cfg)
	return cfg, nil
}

func scrape(cmd *cobra.Command, cfg *config.Config, args []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	subjects := content.Subjects(args)
	if len(subjects) == 0 {
		subjects = content.Subjects(cfg.Content.Subjects)
	}
	if len(subjects) == 0 {
		subjects = content.Subjects([]string{"cancer", "acuario"})
	}

	fetcher := app.BuildFetcher(cfg, logx.NewConsole(cfg.Logging.Level), nil)
	delay := config.MustDuration(cfg.Content.SubjectDelay, config.DefaultSubjectDelay)

	results := make([]content.Result, 0, len(subjects))
	for i, s := range subjects {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		fmt.Fprintf(out, "== %s (%s)\n", s, fetcher.URL(s))
		res, err := fetcher.FetchLive(ctx, s)
		if err != nil {
			fmt.Fprintf(out, "   error: %v\n   using fallback text\n", err)
			res = content.Fallback(s)
		}
		printResult(out, res)
		results = append(results, res)
	}

	loc := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, logx.Nop()).Location()
	msg := compose.New(compose.WithLocation(loc)).Compose(compose.Daily, results, time.Now())
	fmt.Fprintf(out, "\n---- daily preview ----\n%s\n", msg)
	return nil
}

func printResult(w io.Writer, r content.Result) {
	fmt.Fprintf(w, "   title:  %s\n", r.Title)
	fmt.Fprintf(w, "   daily:  %d chars  %s\n", len([]rune(r.Daily)), sample(r.Daily, sampleRunes))
	fmt.Fprintf(w, "   weekly: %d chars  %s\n", len([]rune(r.Weekly)), sample(r.Weekly, sampleRunes))
}

// sample truncates s to n runes.
func sample(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}
