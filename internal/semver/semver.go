package semver

import (
	"errors"
	"fmt"
	"regexp"

	mmsemver "github.com/Masterminds/semver/v3"
)

// Class names the version component an increment applies to.
type Class string

const (
	// ClassMajor bumps the major component and resets minor and patch.
	ClassMajor Class = "major"
	// ClassMinor bumps the minor component and resets patch.
	ClassMinor Class = "minor"
	// ClassPatch bumps only the patch component.
	ClassPatch Class = "patch"
)

// strictPattern accepts exactly MAJOR.MINOR.PATCH with non-negative integers.
// Two-part or four-part strings are invalid input, not implicitly padded.
var strictPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

var (
	// ErrInvalidVersion is returned for strings outside MAJOR.MINOR.PATCH form.
	ErrInvalidVersion = errors.New("invalid version, expected MAJOR.MINOR.PATCH")
	// ErrNoVersions is returned when no candidate tag is a valid version.
	ErrNoVersions = errors.New("no valid versions among candidates")
)

// Parse validates the strict three-part form and returns the parsed version.
func Parse(s string) (*mmsemver.Version, error) {
	if !strictPattern.MatchString(s) {
		return nil, fmt.Errorf("%q: %w", s, ErrInvalidVersion)
	}

	v, err := mmsemver.StrictNewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", s, ErrInvalidVersion)
	}

	return v, nil
}

// IsValid reports whether s is a strict MAJOR.MINOR.PATCH version.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Compare orders two version strings by numeric tuple comparison.
// It returns -1, 0 or 1; either argument failing to parse is an error.
func Compare(a, b string) (int, error) {
	av, err := Parse(a)
	if err != nil {
		return 0, err
	}

	bv, err := Parse(b)
	if err != nil {
		return 0, err
	}

	return av.Compare(bv), nil
}

// Latest selects the maximum version among candidates by numeric tuple order.
// Candidates outside the strict form are excluded, not treated as zero.
func Latest(candidates []string) (string, error) {
	var best *mmsemver.Version

	for _, candidate := range candidates {
		v, err := Parse(candidate)
		if err != nil {
			continue
		}

		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}

	if best == nil {
		return "", ErrNoVersions
	}

	return best.String(), nil
}

// Bump increments base by the provided class.
// Major resets minor and patch, minor resets patch.
// An unknown class is treated as a patch increment.
func Bump(base string, class Class) (string, error) {
	v, err := Parse(base)
	if err != nil {
		return "", err
	}

	var next mmsemver.Version

	switch class {
	case ClassMajor:
		next = v.IncMajor()
	case ClassMinor:
		next = v.IncMinor()
	default:
		next = v.IncPatch()
	}

	return next.String(), nil
}
