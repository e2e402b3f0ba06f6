package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/neurlang/pretrain/device"
	"github.com/neurlang/pretrain/learning"
	"github.com/neurlang/pretrain/trainer"
)

type trainArgs struct {
	devices      int
	trainDataDir string
	valDataDir   string
	precision    string
	resume       bool
	resumeFrom   string
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "train_redpajama",
	})
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && os.Getenv("LOG_LEVEL") != "" {
		logger.SetLevel(lvl)
	}
	return logger
}

func newCommand(logger *log.Logger) *cobra.Command {
	var args trainArgs
	cmd := &cobra.Command{
		Use:           "train_redpajama",
		Short:         "Continue pretraining on the RedPajama sample mixture",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			precision, err := device.ParsePrecision(args.precision)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			stop := startProfile(logger)
			defer stop()

			return trainer.Run(ctx, learning.Default(), trainer.Options{
				Devices:    args.devices,
				TrainDir:   args.trainDataDir,
				ValDir:     args.valDataDir,
				Precision:  precision,
				Resume:     args.resume,
				ResumeFrom: args.resumeFrom,
			}, logger)
		},
	}
	cmd.Flags().IntVar(&args.devices, "devices", 4, "number of devices, one worker each")
	cmd.Flags().StringVar(&args.trainDataDir, "train-data-dir", "data/redpajama_sample", "directory of the packed training shards")
	cmd.Flags().StringVar(&args.valDataDir, "val-data-dir", "", "directory of the packed validation shards")
	cmd.Flags().StringVar(&args.precision, "precision", "", "bf16-mixed, bf16-true, 16-mixed, 16-true or 32-true (default by hardware)")
	cmd.Flags().BoolVar(&args.resume, "resume", false, "resume from the latest checkpoint")
	cmd.Flags().StringVar(&args.resumeFrom, "resume-from", "", "resume from this checkpoint file")
	return cmd
}

func main() {
	logger := newLogger()
	if err := newCommand(logger).ExecuteContext(context.Background()); err != nil {
		logger.Error("training failed", "err", err)
		os.Exit(1)
	}
}
