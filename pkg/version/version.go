// Package version provides node software version parsing and compatibility checks.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the version advertised by this build.
const Current = "0.1.0"

// NodeVersion represents a parsed "major.minor[.patch]" version.
type NodeVersion struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// Parse parses a "major.minor" or "major.minor.patch" version string.
func Parse(s string) (NodeVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 && len(parts) != 3 {
		return NodeVersion{}, fmt.Errorf("invalid version %q: expected major.minor[.patch]", s)
	}

	var fields [3]uint16
	names := [3]string{"major", "minor", "patch"}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || p == "" {
			return NodeVersion{}, fmt.Errorf("invalid version %q: bad %s component", s, names[i])
		}
		fields[i] = uint16(n)
	}

	return NodeVersion{Major: fields[0], Minor: fields[1], Patch: fields[2]}, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) NodeVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor.patch".
func (v NodeVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compatible returns true if the other version has the same major version.
func (v NodeVersion) Compatible(other NodeVersion) bool {
	return v.Major == other.Major
}

// Less reports whether v orders before other.
func (v NodeVersion) Less(other NodeVersion) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

// CompatibleWithCurrent parses a peer version and checks it against Current.
// ok is false if the peer version does not parse.
func CompatibleWithCurrent(peer string) (compatible, ok bool) {
	pv, err := Parse(peer)
	if err != nil {
		return false, false
	}
	return MustParse(Current).Compatible(pv), true
}
