package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"touch-braille-go/internal/apperr"
	"touch-braille-go/internal/pipeline"
	"touch-braille-go/internal/report"
	"touch-braille-go/internal/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert <file-or-url>",
	Short: "Convert one audio/video file or URL to Braille",
	Long: `Run the full pipeline for a single input.

Examples:
  touch convert lecture.mp4                         # optimized text to output.brf
  touch convert talk.wav --mode unicode -o talk.brf # Unicode Braille cells
  touch convert "https://youtu.be/abc" --report runs.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

// Flags
var (
	convertOutput     string
	convertMode       string
	convertBucket     string
	convertRegion     string
	convertReport     string
	convertRunTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Output file (default output.brf)")
	convertCmd.Flags().StringVarP(&convertMode, "mode", "m", "", "Braille output mode: unicode or optimized")
	convertCmd.Flags().StringVar(&convertBucket, "bucket", "", "S3 bucket for intermediate audio")
	convertCmd.Flags().StringVar(&convertRegion, "region", "", "AWS region")
	convertCmd.Flags().StringVar(&convertReport, "report", "", "Append a run summary to this .xlsx workbook")
	convertCmd.Flags().DurationVar(&convertRunTimeout, "timeout", 0, "Overall run deadline")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if convertOutput != "" {
		cfg.OutputPath = convertOutput
	}
	if convertMode != "" {
		cfg.Mode = types.OutputMode(strings.ToLower(convertMode))
	}
	if convertBucket != "" {
		cfg.Bucket = convertBucket
	}
	if convertRegion != "" {
		cfg.Region = convertRegion
	}
	if convertRunTimeout > 0 {
		cfg.RunTimeout = convertRunTimeout
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s\nhint: %s", err, apperr.Hint(apperr.KindConfig))
	}

	log := newLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			log.WithError(err).Warn("metrics flush failed")
		}
	}()

	res, runErr := app.Pipeline.Run(ctx, pipeline.Request{Input: args[0]})

	if convertReport != "" {
		if err := report.Append(convertReport, res); err != nil {
			log.WithError(err).Warn("could not write run report")
		}
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}

	var re *pipeline.RunError
	if errors.As(runErr, &re) {
		return fmt.Errorf("%s failed with %s: %v\nhint: %s", re.Stage, re.Kind, re.Err, re.Hint)
	}
	if runErr != nil {
		return runErr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d %s to %s (run %s)\n", res.Cells, unit(res.Mode), res.Output, res.RunID)
	return nil
}

func unit(mode types.OutputMode) string {
	if mode == types.ModeUnicode {
		return "Braille cells"
	}
	return "characters"
}
