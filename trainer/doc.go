// Package trainer drives continued pretraining of the causal network: it
// launches one worker per device, streams the corpus mixture, accumulates
// gradients, steps the sharded AdamW on the learning rate schedule, and
// validates and checkpoints on the optimizer step cadence.
//
// Workers run in lockstep. They synchronize in the gradient all-reduce,
// the parameter all-gather and a barrier after each validation. Only the
// coordinator prints, writes the csv log and writes checkpoints.
package trainer
