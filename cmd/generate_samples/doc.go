// Package main writes synthetic training text as packed shards.
//
// Each sample prompts a pretrained GPT-2 with a random vocabulary word and
// keeps the continuation, re-tokenized to block size + 1 tokens. The
// shards are named <prefix>_NNNNNNNNNN.bin, the generated_data corpus of
// train_redpajama. Existing shards with the prefix are never replaced;
// delete them to regenerate.
//
//	generate_samples --model-dir models/gpt2 --out-dir data/redpajama_sample --num-samples 1000
//
// The model directory holds vocab.json, merges.txt and model.onnx.
// ONNXRUNTIME_SHARED_LIBRARY_PATH names the onnxruntime library and
// PRETRAIN_CUDA_DEVICE_ID selects a CUDA device.
package main
