// Package pipeline orchestrates a batch run: scan and resume filter,
// parallel fingerprinting, sequential per-track resolution and mutation,
// with a pause/cancel latch sampled at every suspension point and throttled
// progress events.
package pipeline
