package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"horoscopebot/internal/app"
)

var (
	configPath string
	sendNow    bool
)

var rootCmd = &cobra.Command{
	Use:   "bot",
	Short: "Daily and weekly horoscope delivery over a messaging session",
	Long: `bot scrapes horoscope pages for the configured signs, composes a Spanish
message and sends it to a single recipient over WhatsApp or Telegram.

Examples:
  bot                      # run with ./config.yaml
  bot run --send-now       # run and send a test message after 10s
  bot scrape leo piscis    # check extraction without sending anything
  bot history -n 3         # show the last logged messages (sqlite run log)`,
	SilenceUsage: true,
	RunE:         runBot,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect the session and deliver on schedule (default)",
	RunE:  runBot,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "path to config (json or yaml)")
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().BoolVar(&sendNow, "send-now", false, "send the daily and weekly messages shortly after start")
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func runBot(cmd *cobra.Command, _ []string) error {
	a, err := app.New(configPath, app.Options{SendNow: sendNow})
	if err != nil {
		return err
	}
	return a.Run(cmd.Context())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
