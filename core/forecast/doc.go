// Package forecast implements the next-delta forecasting network: a packed
// recurrent encoder over length-sorted sequences followed by a ReLU decoder
// head, with an optional de-standardization of the output.
//
// Two variants exist. Scaled maps predictions back to physical units with a
// ScaleSpec. Unscaled predicts in standardized units and is only meant for
// research runs; constructing one logs a warning.
package forecast
