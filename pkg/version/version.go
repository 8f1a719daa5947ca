// Package version implements the three-component numeric versions used by
// layers, recipes and buckets, together with their total order.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFormat is returned (wrapped) for any text that is not a valid version.
var ErrFormat = errors.New("invalid version format")

// BucketPatchCeiling is the patch number an upper bucket bound is expanded to.
// Versions with a real patch at or above it escape their bucket.
const BucketPatchCeiling = 999

// Version is a major.minor.patch triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// New builds a version from its components.
func New(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// Parse parses text of the exact form "N.N.N".
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q: expected major.minor.patch", ErrFormat, s)
	}

	var nums [3]int
	for i, p := range parts {
		n, err := parseComponent(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrFormat, s, err)
		}
		nums[i] = n
	}

	return New(nums[0], nums[1], nums[2]), nil
}

// MustParse is Parse for literals; it panics on malformed input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseBound parses a bucket boundary. Both "N.N.x" and "N.N.N" are accepted;
// the patch component is replaced by patch in either case.
func ParseBound(s string, patch int) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q: expected major.minor.x", ErrFormat, s)
	}

	major, err := parseComponent(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrFormat, s, err)
	}
	minor, err := parseComponent(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrFormat, s, err)
	}
	if !strings.EqualFold(parts[2], "x") {
		if _, err := parseComponent(parts[2]); err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrFormat, s, err)
		}
	}

	return New(major, minor, patch), nil
}

func parseComponent(p string) (int, error) {
	if p == "" {
		return 0, errors.New("empty component")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-numeric component %q", p)
		}
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("component %q out of range", p)
	}
	return n, nil
}

// String renders the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ShortForm renders the minor line of v as "major.minor.x".
func (v Version) ShortForm() string {
	return fmt.Sprintf("%d.%d.x", v.Major, v.Minor)
}

// WithPatch returns a copy of v with the patch replaced.
func (v Version) WithPatch(patch int) Version {
	v.Patch = patch
	return v
}

// Compare returns -1, 0 or 1 comparing a to b by (major, minor, patch).
func Compare(a, b Version) int {
	switch {
	case a.Major != b.Major:
		return sign(a.Major - b.Major)
	case a.Minor != b.Minor:
		return sign(a.Minor - b.Minor)
	default:
		return sign(a.Patch - b.Patch)
	}
}

func sign(d int) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// GT reports whether v > o.
func (v Version) GT(o Version) bool { return Compare(v, o) > 0 }

// GTE reports whether v >= o.
func (v Version) GTE(o Version) bool { return Compare(v, o) >= 0 }

// LT reports whether v < o.
func (v Version) LT(o Version) bool { return Compare(v, o) < 0 }

// LTE reports whether v <= o.
func (v Version) LTE(o Version) bool { return Compare(v, o) <= 0 }

// SameMinorLine reports whether a and b share major and minor.
func SameMinorLine(a, b Version) bool {
	return a.Major == b.Major && a.Minor == b.Minor
}

// Min returns the smallest of vs. ok is false when vs is empty.
func Min(vs ...Version) (Version, bool) {
	var lo Version
	for i, v := range vs {
		if i == 0 || v.LT(lo) {
			lo = v
		}
	}
	return lo, len(vs) > 0
}

// Max returns the largest of vs. ok is false when vs is empty.
func Max(vs ...Version) (Version, bool) {
	var hi Version
	for i, v := range vs {
		if i == 0 || v.GT(hi) {
			hi = v
		}
	}
	return hi, len(vs) > 0
}

// Set is an unordered collection of versions.
type Set map[Version]struct{}

// NewSet builds a set from vs.
func NewSet(vs ...Version) Set {
	s := make(Set, len(vs))
	for _, v := range vs {
		s[v] = struct{}{}
	}
	return s
}

// Contains reports whether v is in the set.
func (s Set) Contains(v Version) bool {
	_, ok := s[v]
	return ok
}

// Min returns the smallest member of the set.
func (s Set) Min() (Version, bool) {
	vs := make([]Version, 0, len(s))
	for v := range s {
		vs = append(vs, v)
	}
	return Min(vs...)
}
