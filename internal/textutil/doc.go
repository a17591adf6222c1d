// Package textutil holds the string primitives shared by identification and
// organization: normalization for comparison, fuzzy similarity, filename
// sanitization, and smart title casing.
package textutil
