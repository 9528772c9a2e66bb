// Package main is the entry point for the coauthor CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/coauthor/internal/config"
	"github.com/flemzord/coauthor/internal/core"
	"github.com/flemzord/coauthor/pkg/app"

	// Compiled modules.
	_ "github.com/flemzord/coauthor/internal/gateway"
	_ "github.com/flemzord/coauthor/modules/index/sqlite"
	_ "github.com/flemzord/coauthor/modules/provider/openai"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coauthor",
		Short:         "Writing-assistant backend serving GPT suggestions to an editor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), replayCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "coauthor %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	var o app.Overrides
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the server with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Overrides:  o,
				Version:    version,
				Commit:     commit,
				Date:       date,
			})
		},
	}
	addOverrideFlags(cmd, &o)
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

// addOverrideFlags registers the flags that override the configuration.
// Names keep the underscores existing deployments pass.
func addOverrideFlags(cmd *cobra.Command, o *app.Overrides) {
	f := cmd.Flags()
	f.StringVar(&o.ConfigDir, "config_dir", "", "Directory holding access codes, examples, prompts, and blocklist")
	f.StringVar(&o.LogDir, "log_dir", "", "Directory receiving session logs and metadata")
	f.IntVar(&o.Port, "port", 0, "Listen on 0.0.0.0 at this port")
	f.StringVar(&o.ProjName, "proj_name", "", "Subdirectory of log_dir for this project's logs")
	f.StringVar(&o.ReplayDir, "replay_dir", "", "Directory searched for logs by get_log (default ../logs)")
	f.BoolVar(&o.Debug, "debug", false, "Log at debug level")
	f.BoolVar(&o.Verbose, "verbose", false, "Log full query requests and results")
	f.BoolVar(&o.UseBlocklist, "use_blocklist", false, "Drop suggestions containing blocklisted words")
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	var o app.Overrides
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := app.RunParams{Overrides: o}
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			cfg, path, err := app.LoadConfig(params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if path == "" {
				path = "(flags)"
			}
			fmt.Fprintf(out, "Configuration OK: %s (%d modules)\n", path, len(cfg.Modules))
			for _, id := range config.Resolve(cfg) {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintf(out, "config_dir: %s\nlog_dir:    %s/%s\nreplay_dir: %s\n",
				cfg.Paths.ConfigDir, cfg.Paths.LogDir, cfg.Paths.ProjName, cfg.Paths.ReplayDir)
			return nil
		},
	}
	addOverrideFlags(check, &o)
	cmd.AddCommand(check)
	return cmd
}
