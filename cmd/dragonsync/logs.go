package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// newLogsCommand adds the "logs" subcommand: tail a zerolog JSON log file
// and pretty-print it, replacing the shell alias the original project's
// utils/log_viewer.py served.
func newLogsCommand() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs <path>",
		Short: "Tail and pretty-print a dragonsync JSON log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tailLogs(cmd.OutOrStdout(), args[0], follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep reading as the file grows, like tail -f")
	return cmd
}

func tailLogs(out io.Writer, path string, follow bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("dragonsync: logs: opening %s: %w", path, err)
	}
	defer f.Close()

	writer := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		writer.Write(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("dragonsync: logs: reading %s: %w", path, err)
	}

	if !follow {
		return nil
	}
	for {
		// A Scanner stops for good at EOF, so each poll starts a fresh one
		// from the file's current offset to pick up appended lines.
		scanner = bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			writer.Write(scanner.Bytes())
		}
		time.Sleep(500 * time.Millisecond)
	}
}
