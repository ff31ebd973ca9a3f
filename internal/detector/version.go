package detector

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// VersionComparer orders version strings and tells pre-releases apart. The
// detector depends only on this interface, never on a version grammar.
type VersionComparer interface {
	// Compare returns -1, 0 or 1 when a is lower than, equal to or higher
	// than b.
	Compare(a, b string) (int, error)
	IsPrerelease(v string) (bool, error)
}

// Host versions use PEP 440 style suffixes ("2024.1.0b3"); semver needs
// "2024.1.0-b.3".
var pep440Suffix = regexp.MustCompile(`^(\d+(?:\.\d+)*)(a|b|rc|dev)(\d+)$`)

// SemverComparer implements VersionComparer with Masterminds semver.
type SemverComparer struct{}

func (SemverComparer) Compare(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

func (SemverComparer) IsPrerelease(v string) (bool, error) {
	parsed, err := parseVersion(v)
	if err != nil {
		return false, err
	}
	return parsed.Prerelease() != "", nil
}

func parseVersion(v string) (*semver.Version, error) {
	if m := pep440Suffix.FindStringSubmatch(v); m != nil {
		v = m[1] + "-" + m[2] + "." + m[3]
	}
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("parse version %q: %w", v, err)
	}
	return parsed, nil
}
