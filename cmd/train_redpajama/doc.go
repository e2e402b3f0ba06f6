// Package main continues pretraining of the causal network on the
// RedPajama sample mixture.
//
// The training data directory must hold packed shards whose names start
// with the corpus prefixes arxiv_sample, book_sample, c4_sample and
// generated_data. Checkpoints and csv logs go to out/redpajama.
//
//	train_redpajama --devices 4 --train-data-dir data/redpajama_sample --resume
//
// SIGINT and SIGTERM stop training at the next iteration boundary; the
// last checkpoint is the recovery point. LOG_LEVEL=debug prints phase
// transitions and PRETRAIN_CPUPROFILE names a CPU profile to write.
package main
