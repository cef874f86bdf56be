// Package version checks a PDL source file's declared pdl_version pragma
// against the compiler's own version, so a source file written for a
// newer or incompatible PDLC release fails fast with a clear diagnostic
// instead of producing a subtly wrong codec.
package version

import (
	"fmt"

	"github.com/coreos/go-semver/semver"
)

// Current is the compiler's own version. Tests pass a fixed compiler
// version to Check directly.
var Current = semver.New("0.1.0")

// Pragma is a parsed `pdl_version = "X.Y.Z"` file-level pragma.
type Pragma struct {
	Raw     string
	Version *semver.Version
}

// ParsePragma parses a pdl_version pragma's literal string value.
func ParsePragma(raw string) (*Pragma, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid pdl_version %q: %w", raw, err)
	}
	return &Pragma{Raw: raw, Version: v}, nil
}

// Check reports whether a file declaring p is compatible with compiler.
// Compatibility follows semver's usual contract for a 0.x or 1.x tool: the
// major version must match, and the file's declared minor must not exceed
// the compiler's (the patch level is not compared), since a newer minor release may have added
// grammar or semantics this compiler doesn't know about.
func Check(p *Pragma, compiler *semver.Version) error {
	if p == nil {
		return nil
	}
	if p.Version.Major != compiler.Major {
		return fmt.Errorf("pdl_version %s requires major version %d, compiler is %s",
			p.Raw, p.Version.Major, compiler)
	}
	if p.Version.Minor > compiler.Minor {
		return fmt.Errorf("pdl_version %s requires a newer compiler than %s", p.Raw, compiler)
	}
	return nil
}
