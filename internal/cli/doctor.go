package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"touch-braille-go/internal/diagnostics"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check tools, configuration and bucket access",
	RunE:  runDoctor,
}

var doctorRemote bool

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorRemote, "remote", false, "Also probe the configured bucket (writes and deletes a zero-byte object)")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfgErr := cfg.Validate()
	log := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var access diagnostics.AccessChecker
	if doctorRemote && cfgErr == nil {
		awsCfg, err := loadAWS(ctx, cfg)
		if err != nil {
			return err
		}
		access = newGateway(awsCfg, cfg, log)
	}

	rep := diagnostics.NewChecker(access).Run(ctx, cfg, cfgErr)
	out := cmd.OutOrStdout()
	for _, item := range rep.Items {
		fmt.Fprintf(out, "[%s] %-20s %s\n", item.Status, item.Name, item.Message)
		if item.Hint != "" && item.Status != diagnostics.StatusPass {
			fmt.Fprintf(out, "       %-20s hint: %s\n", "", item.Hint)
		}
	}
	if rep.HasFailures {
		return fmt.Errorf("environment checks failed")
	}
	fmt.Fprintln(out, "all required checks passed")
	return nil
}
