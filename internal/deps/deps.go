// Package deps discovers the external binaries tagflow shells out to.
package deps

import (
	"os/exec"
	"strings"
)

// ResolveFpcalcPath returns the absolute path of the fingerprint extractor,
// or "" when it is not installed.
func ResolveFpcalcPath(binary string) string {
	if strings.TrimSpace(binary) == "" {
		binary = "fpcalc"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return ""
	}
	return path
}

// FpcalcAvailable reports whether the fingerprint extractor is on PATH.
func FpcalcAvailable(binary string) bool {
	return ResolveFpcalcPath(binary) != ""
}
