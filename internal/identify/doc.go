// Package identify resolves candidate identities for tracks against the
// external oracles, scores them with a weighted multi-factor confidence
// model, and classifies each track into an action tier.
package identify
