package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/go-osal/internal/soak"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		configPath  string
		duration    string
		verbose     bool
		failOnFault bool
	)
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a soak test",
		Long: `Runs the workers described by the config file (or the built-in default
config), then prints the report to stdout. Logs are written to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := soak.DefaultConfig()
			if configPath != `` {
				var err error
				if cfg, err = soak.LoadConfig(configPath); err != nil {
					return err
				}
			}
			if duration != `` {
				cfg.Duration = duration
			}

			logger, closeLog, err := soak.NewLogger(cfg.Log, cmd.ErrOrStderr(), verbose)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := soak.Run(ctx, cfg, logger)
			if err != nil {
				return err
			}

			b, err := report.YAML()
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(b); err != nil {
				return err
			}

			if n := report.Faults(); failOnFault && n != 0 {
				return fmt.Errorf(`%d of %d workers faulted`, n, len(report.Workers))
			}
			return nil
		},
	}
	runCmd.Flags().StringVarP(&configPath, "config", "c", ``, "soak config file (YAML)")
	runCmd.Flags().StringVarP(&duration, "duration", "d", ``, "override the configured duration")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	runCmd.Flags().BoolVar(&failOnFault, "fail-on-fault", false, "exit non-zero if any worker faulted")
	return runCmd
}
