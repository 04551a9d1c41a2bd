// Package nn implements the small set of differentiable building blocks the
// forecasting model needs: dense layers with ReLU, LSTM and GRU cells laid out
// like their PyTorch counterparts, and a stacked, optionally bidirectional
// recurrent encoder that scans length-sorted batches as packed sequences.
//
// Every block keeps a trace of its forward pass and accumulates gradients
// into Param.Grad on the backward pass. All matrices are gonum *mat.Dense with
// one row per batch element.
package nn
