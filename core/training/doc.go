// Package training drives the epoch loop: one optimizer step per batch, a
// validation pass, early stopping, checkpoint triggers and periodic
// evaluation. A batch whose loss or gradients are not finite is skipped or
// aborts the run depending on the InstabilityPolicy; the skip count is part
// of every EpochStats.
package training
