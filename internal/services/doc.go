// Package services defines the shared error taxonomy and retry helpers for
// every external collaborator tagflow talks to (oracles, the fingerprint
// extractor, the filesystem).
package services
