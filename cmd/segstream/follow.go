package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"segstream/internal/config"
	"segstream/internal/home"
	"segstream/internal/notify"
	"segstream/internal/repository"
)

func newFollowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Print segment paths as the producer rolls them",
		Long: "Follow a repository directory and print each segment path as it " +
			"appears, starting from the newest existing segment. The directory " +
			"comes from --dir, or from the settings file when --settings is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			settingsPath, _ := cmd.Flags().GetString("settings")
			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				interval = repository.DefaultPollInterval
			}
			logger, err := loggerFromCmd(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			wake := notify.NewSignal()
			cfg := repository.Config{
				Wake:         wake,
				PollInterval: interval,
				Logger:       logger,
			}
			// No explicit directory: fall back to the configured one.
			if dir == "" && settingsPath == "" {
				homeDir, err := home.Default()
				if err != nil {
					return err
				}
				settingsPath = homeDir.SettingsPath()
			}

			watchDir := dir
			if settingsPath != "" {
				settings := config.NewSettings(settingsPath)
				if err := settings.Load(); err != nil {
					return err
				}
				cfg.Locator = repository.SettingsLocator(settings)
				watchDir, _ = settings.Repository()
			} else {
				cfg.Locator = repository.FixedLocator(dir)
			}

			files, err := repository.NewFiles(cfg)
			if err != nil {
				return err
			}
			defer files.Close()

			group, ctx := errgroup.WithContext(ctx)
			if watchDir != "" {
				watcher, err := repository.WatchRepository(watchDir, wake, logger)
				if err != nil {
					// Advisory only: polling still finds everything.
					logger.Warn("repository watch unavailable, relying on polling", "error", err)
				} else {
					group.Go(func() error { return watcher.Run(ctx) })
				}
			}
			group.Go(func() error {
				defer files.Close()
				return follow(ctx, cmd, files, wake, interval)
			})

			if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "repository directory")
	cmd.Flags().String("settings", "", "settings file holding the repository directory")
	cmd.Flags().Duration("interval", repository.DefaultPollInterval, "poll interval")
	return cmd
}

// follow anchors at the newest segment and then walks forward, retrying
// with a bounded sleep whenever nothing newer is available yet.
func follow(ctx context.Context, cmd *cobra.Command, files *repository.Files, wake *notify.Signal, interval time.Duration) error {
	out := cmd.OutOrStdout()

	path, ok := files.Latest(ctx)
	if !ok {
		return ctx.Err()
	}
	fmt.Fprintln(out, path)
	key, _ := files.StartTime(path)
	key++

	for ctx.Err() == nil {
		path, ok := files.NextAfter(key)
		if !ok {
			wakeCh := wake.C()
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-wakeCh:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}
		nanos, ok := files.StartTime(path)
		if !ok {
			continue
		}
		fmt.Fprintln(out, path)
		key = nanos + 1
	}
	return ctx.Err()
}
