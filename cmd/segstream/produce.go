package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"segstream/internal/segment"
)

// newProduceCmd returns the demo producer: it rolls synthetic segments
// into a directory at a fixed interval, exercising the consumer side the
// way a real telemetry writer would.
func newProduceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Roll synthetic segments into a repository directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			rotate, _ := cmd.Flags().GetDuration("rotate")
			count, _ := cmd.Flags().GetInt("count")
			logger, err := loggerFromCmd(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return produce(ctx, dir, rotate, count, logger)
		},
	}
	cmd.Flags().String("dir", ".", "repository directory")
	cmd.Flags().Duration("rotate", 5*time.Second, "segment rotation interval")
	cmd.Flags().Int("count", 0, "number of segments to produce (0 = until interrupted)")
	return cmd
}

func produce(ctx context.Context, dir string, rotate time.Duration, count int, logger *slog.Logger) error {
	logger = logger.With("component", "producer")
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	for produced := 0; count == 0 || produced < count; produced++ {
		start := time.Now()
		w, err := segment.Create(dir, start.UnixNano(), 0)
		if err != nil {
			return err
		}
		logger.Info("segment opened", "path", w.Path())

		if err := fillSegment(ctx, w, rng, rotate); err != nil {
			_ = w.Abort()
			return err
		}
		if err := w.Finish(time.Now().UnixNano()); err != nil {
			return err
		}
		logger.Info("segment finished", "path", w.Path())

		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// fillSegment writes synthetic payload lines until the rotation interval
// elapses or ctx is cancelled.
func fillSegment(ctx context.Context, w *segment.Writer, rng *rand.Rand, rotate time.Duration) error {
	deadline := time.NewTimer(rotate)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return nil
		case now := <-tick.C:
			line := fmt.Sprintf("%s event=%d value=%d\n",
				now.UTC().Format(time.RFC3339Nano), rng.IntN(1000), rng.IntN(1_000_000))
			if _, err := w.Write([]byte(line)); err != nil {
				return err
			}
		}
	}
}
