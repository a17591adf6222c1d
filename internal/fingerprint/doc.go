// Package fingerprint runs the external Chromaprint extractor (fpcalc)
// across a batch of tracks with bounded parallelism and responsive
// cancellation.
package fingerprint
