package main

import (
	"fmt"
	"math"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"segstream/internal/repository"
	"segstream/internal/segment"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List segments in a repository directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			logger, err := loggerFromCmd(cmd)
			if err != nil {
				return err
			}

			files, err := repository.NewFiles(repository.Config{Dir: dir, Logger: logger})
			if err != nil {
				return err
			}
			defer files.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "START\tDURATION\tFINISHED\tPATH")

			key := int64(math.MinInt64)
			for {
				path, ok := files.NextAfter(key)
				if !ok {
					break
				}
				nanos, ok := files.StartTime(path)
				if !ok {
					// Removed between discovery and lookup; move on.
					continue
				}
				duration := "-"
				finished := "no"
				if header, err := segment.ReadHeader(path); err == nil {
					duration = time.Duration(header.Duration).String()
					if header.Finished() {
						finished = "yes"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					time.Unix(0, nanos).UTC().Format(time.RFC3339Nano),
					duration, finished, path)
				key = nanos + 1
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("dir", ".", "repository directory")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <segment-file>",
		Short: "Print one segment header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, err := segment.ReadHeader(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:       %s\n", header.ID)
			fmt.Fprintf(out, "start:    %s\n", time.Unix(0, header.StartNanos).UTC().Format(time.RFC3339Nano))
			fmt.Fprintf(out, "duration: %s\n", time.Duration(header.Duration))
			fmt.Fprintf(out, "data:     %d bytes at offset %d\n", header.DataSize, header.DataOffset)
			fmt.Fprintf(out, "finished: %v\n", header.Finished())
			return nil
		},
	}
}
