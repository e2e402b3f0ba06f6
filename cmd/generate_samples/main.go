package main

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/neurlang/pretrain/datasets"
	"github.com/neurlang/pretrain/learning"
	"github.com/neurlang/pretrain/net/causal"
	"github.com/neurlang/pretrain/pretrained/gpt2"
)

// samplesPerChunk is the number of sequences packed into one shard file.
const samplesPerChunk = 64

type generateArgs struct {
	modelDir   string
	outDir     string
	prefix     string
	numSamples int
	blockSize  int
	seed       uint64
}

func generate(args generateArgs, logger *log.Logger) error {
	if args.blockSize <= 0 || args.numSamples <= 0 {
		return errors.Errorf("block size %d and sample count %d must be positive", args.blockSize, args.numSamples)
	}
	p, err := gpt2.Open(args.modelDir, os.Getenv("PRETRAIN_CUDA_DEVICE_ID"), args.seed)
	if err != nil {
		return err
	}
	defer p.Close()

	length := args.blockSize + 1
	b, err := datasets.NewBuilder(args.outDir, args.prefix, length*samplesPerChunk, p.EOS(), len(p.Vocab()))
	if err != nil {
		return err
	}
	g, err := datasets.NewGenerated(p, length, args.numSamples, args.seed, logger)
	if err != nil {
		return err
	}
	for n := 0; ; n++ {
		seq, err := g.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := b.Add(seq); err != nil {
			return err
		}
		logger.Debug("sample", "n", n, "word", g.Words()[len(g.Words())-1])
	}
	if err := b.Finish(); err != nil {
		return err
	}
	logger.Info("wrote synthetic shards", "files", len(b.Files()), "samples", args.numSamples, "dir", args.outDir)
	return nil
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "generate_samples"})
	h := learning.Default()
	cfg, _ := causal.ConfigFromName(h.ModelName)

	var args generateArgs
	cmd := &cobra.Command{
		Use:           "generate_samples",
		Short:         "Write synthetic GPT-2 text as packed shards",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return generate(args, logger)
		},
	}
	cmd.Flags().StringVar(&args.modelDir, "model-dir", "models/gpt2", "directory with vocab.json, merges.txt and model.onnx")
	cmd.Flags().StringVar(&args.outDir, "out-dir", "data/redpajama_sample", "directory of the packed shards")
	cmd.Flags().StringVar(&args.prefix, "prefix", "generated_data", "shard file prefix")
	cmd.Flags().IntVar(&args.numSamples, "num-samples", h.NumSamples, "number of samples")
	cmd.Flags().IntVar(&args.blockSize, "block-size", cfg.BlockSize, "model block size")
	cmd.Flags().Uint64Var(&args.seed, "seed", h.Seed, "seed word sampling seed")

	if err := cmd.Execute(); err != nil {
		logger.Error("generation failed", "err", err)
		os.Exit(1)
	}
}
