package artifacts

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// CheckCompiler verifies that the artifact was built by a compiler that
// satisfies constraint. npm-style "^" and "~" ranges are accepted. Artifacts
// that do not record a compiler version, and empty constraints, pass.
func CheckCompiler(constraint string, a *Artifact) error {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" || a.Compiler.Version == "" {
		return nil
	}

	c, err := ParseConstraint(constraint)
	if err != nil {
		return err
	}

	// "0.6.12+commit.27d51765.Emscripten.clang" -> "0.6.12+commit.27d51765"
	raw := strings.TrimPrefix(a.Compiler.Version, "v")
	v, err := version.NewVersion(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "+-"); i > 0 {
			v, err = version.NewVersion(raw[:i])
		}
		if err != nil {
			return fmt.Errorf("%w: %s: unparseable compiler version %q", ErrInvalid, a.ContractName, a.Compiler.Version)
		}
	}

	// Prerelease and build metadata never affect the pin.
	core := v.Core()
	if !c.Check(core) {
		return fmt.Errorf("%w: %s built with solc %s, want %s", ErrCompilerMatch, a.ContractName, core, constraint)
	}
	return nil
}

// ParseConstraint parses a version constraint, translating npm caret and
// tilde ranges into go-version syntax.
func ParseConstraint(s string) (version.Constraints, error) {
	expr := s
	switch {
	case strings.HasPrefix(s, "^"):
		expr = caretRange(strings.TrimPrefix(s, "^"))
	case strings.HasPrefix(s, "~") && !strings.HasPrefix(s, "~>"):
		expr = tildeRange(strings.TrimPrefix(s, "~"))
	}

	c, err := version.NewConstraint(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid compiler version constraint %q: %w", s, err)
	}
	return c, nil
}

// caretRange: ^1.2.3 := >=1.2.3 <2.0.0, ^0.6.8 := >=0.6.8 <0.7.0,
// ^0.0.3 := >=0.0.3 <0.0.4.
func caretRange(s string) string {
	v, err := version.NewVersion(s)
	if err != nil {
		return "^" + s
	}
	seg := v.Segments()
	var upper string
	switch {
	case seg[0] > 0:
		upper = fmt.Sprintf("%d.0.0", seg[0]+1)
	case seg[1] > 0:
		upper = fmt.Sprintf("0.%d.0", seg[1]+1)
	default:
		upper = fmt.Sprintf("0.0.%d", seg[2]+1)
	}
	return fmt.Sprintf(">= %s, < %s", v.Core(), upper)
}

// tildeRange: ~1.2.3 := >=1.2.3 <1.3.0.
func tildeRange(s string) string {
	v, err := version.NewVersion(s)
	if err != nil {
		return "~" + s
	}
	seg := v.Segments()
	return fmt.Sprintf(">= %s, < %d.%d.0", v.Core(), seg[0], seg[1]+1)
}
