package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/coauthor/internal/replay"
	"github.com/flemzord/coauthor/internal/transcript"
)

// replayOutput is printed by the replay command in JSON mode.
type replayOutput struct {
	Text    string           `json:"text"`
	Mask    string           `json:"mask"`
	Stats   replay.Stats     `json:"stats"`
	Ignored []replay.Ignored `json:"ignored,omitempty"`
}

func replayCmd() *cobra.Command {
	var (
		events       int
		removePrompt bool
		asJSON       bool
		debug        bool
	)
	cmd := &cobra.Command{
		Use:   "replay <log file>",
		Short: "Rebuild the document of a session log (.jsonl or .json)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			records, err := transcript.Read(args[0])
			if err != nil {
				return err
			}
			evs, err := replay.DecodeEvents(records)
			if err != nil {
				return err
			}

			k := len(evs)
			if events > 0 {
				k = events
			}
			res := replay.TextAndMask(evs, k, replay.Options{RemovePrompt: removePrompt, Logger: logger})
			stats := replay.ComputeStats(evs, logger)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(replayOutput{
					Text:    res.Text,
					Mask:    res.Mask,
					Stats:   stats,
					Ignored: res.Ignored,
				})
			}

			fmt.Fprintln(out, res.Text)
			fmt.Fprintln(out, "---")
			raw, err := yaml.Marshal(stats.EventCounter)
			if err != nil {
				return err
			}
			_, err = out.Write(raw)
			return err
		},
	}
	cmd.Flags().IntVarP(&events, "events", "k", 0, "Replay only the first k events (0 = all)")
	cmd.Flags().BoolVar(&removePrompt, "remove_prompt", false, "Drop the prompt from the output")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print text, mask, and stats as JSON")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log ignored operations")
	return cmd
}
