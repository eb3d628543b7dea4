package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hfbot/app"
	"hfbot/ext/channels"
)

var GitCommit = "dev"

type options struct {
	configs  []string
	logLevel string
}

func (o *options) instance() *app.Instance {
	config, err := app.LoadConfig(o.configs...)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	if o.logLevel != "" {
		config.Logging.Level = o.logLevel
	}

	if err := app.SetupLogging(config.Logging); err != nil {
		logrus.Fatalf("setup logging: %v", err)
	}

	return app.NewInstance(config, clock.WallClock)
}

func run(o *options, fn func(ctx context.Context, instance *app.Instance) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		instance := o.instance()
		defer func() {
			if err := instance.Close(); err != nil {
				logrus.Warnf("close: %v", err)
			}
		}()

		if err := fn(ctx, instance); err != nil && ctx.Err() == nil {
			logrus.Fatalf("%s: %+v", cmd.Name(), err)
		}

		logrus.Infof("%s: shutdown", cmd.Name())
	}
}

func main() {
	o := new(options)
	root := &cobra.Command{
		Use:     "hfbot",
		Short:   "Announces songs as they appear on the live setlist.",
		Version: GitCommit,
	}

	root.PersistentFlags().StringArrayVarP(&o.configs, "config", "c", nil, "configuration file (repeatable, later files override earlier ones)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "overrides logging.level")

	root.AddCommand(&cobra.Command{
		Use:   "poll",
		Short: "Poll the live setlist page and announce new songs.",
		Args:  cobra.NoArgs,
		Run: run(o, func(ctx context.Context, instance *app.Instance) error {
			return instance.RunPoll(ctx)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "stream",
		Short: "Follow the setlist account on Bluesky and announce its posts.",
		Args:  cobra.NoArgs,
		Run: run(o, func(ctx context.Context, instance *app.Instance) error {
			return instance.RunStream(ctx)
		}),
	})

	var username string
	lookup := &cobra.Command{
		Use:   "lookup <title>",
		Short: "Print the announcement text for a song.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance := o.instance()
			defer instance.Close()

			text, err := instance.Lookup(cmd.Context(), strings.Join(args, " "), username)
			if err != nil {
				return err
			}

			for _, line := range channels.Wrap(text, instance.Config.Console.Width) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			return nil
		},
	}

	lookup.Flags().StringVarP(&username, "username", "u", "", "phish.net username for the attendance history")
	root.AddCommand(lookup)

	root.AddCommand(&cobra.Command{
		Use:   "warm",
		Short: "Refresh the cached song catalog.",
		Args:  cobra.NoArgs,
		Run: run(o, func(ctx context.Context, instance *app.Instance) error {
			report, err := instance.Warm(ctx)
			if report != nil {
				logrus.Infof("warm: %d songs, %d refreshed, %d failed", report.Songs, report.Refreshed, report.Failed)
			}

			return err
		}),
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
