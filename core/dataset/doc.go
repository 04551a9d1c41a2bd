// Package dataset turns delta-trajectory samples into trainable batches.
//
// A Store owns the raw per-trajectory delta sequences together with their
// labels and a fitted Standardizer. Collate right-pads a group of items into a
// Batch without reordering it; length sorting is left to the model, which
// receives an explicit Permutation for the sort and its inverse. Loader is the
// batching policy (fixed batch size, optional seeded shuffle) used by the
// training loop.
package dataset
