// Package semver implements npm-compatible version bumps.
package semver

import (
	"strings"

	blang "github.com/blang/semver"

	"github.com/felixgeelhaar/rman/internal/errors"
)

// Bump is a release type understood by Inc.
type Bump string

const (
	Major      Bump = "major"
	Minor      Bump = "minor"
	Patch      Bump = "patch"
	PreMajor   Bump = "premajor"
	PreMinor   Bump = "preminor"
	PrePatch   Bump = "prepatch"
	PreRelease Bump = "prerelease"
)

// Bumps lists every release type in prompt order.
var Bumps = []Bump{Patch, Minor, Major, PrePatch, PreMinor, PreMajor, PreRelease}

// IsBump reports whether s names a release type.
func IsBump(s string) bool {
	for _, b := range Bumps {
		if string(b) == s {
			return true
		}
	}
	return false
}

// Valid reports whether v is a strict semantic version.
func Valid(v string) bool {
	_, err := blang.Parse(v)
	return err == nil
}

// Inc returns version bumped by bump. bump is either a release type or an
// explicit version, which is returned normalized. preid names the
// prerelease identifier for the pre* types.
func Inc(version, bump, preid string) (string, error) {
	if !IsBump(bump) {
		explicit, err := blang.Parse(strings.TrimPrefix(bump, "v"))
		if err != nil {
			return "", errors.NewInvalidBumpError(bump)
		}
		return explicit.String(), nil
	}

	v, err := blang.Parse(strings.TrimPrefix(version, "v"))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidBump, "invalid current version "+version, err)
	}
	v.Build = nil

	switch Bump(bump) {
	case Major:
		if v.Minor != 0 || v.Patch != 0 || len(v.Pre) == 0 {
			v.Major++
		}
		v.Minor, v.Patch, v.Pre = 0, 0, nil
	case Minor:
		if v.Patch != 0 || len(v.Pre) == 0 {
			v.Minor++
		}
		v.Patch, v.Pre = 0, nil
	case Patch:
		if len(v.Pre) == 0 {
			v.Patch++
		}
		v.Pre = nil
	case PreMajor:
		v.Major++
		v.Minor, v.Patch, v.Pre = 0, 0, nil
		v.Pre = pre(v.Pre, preid)
	case PreMinor:
		v.Minor++
		v.Patch, v.Pre = 0, nil
		v.Pre = pre(v.Pre, preid)
	case PrePatch:
		v.Patch++
		v.Pre = pre(nil, preid)
	case PreRelease:
		if len(v.Pre) == 0 {
			v.Patch++
		}
		v.Pre = pre(v.Pre, preid)
	}
	return v.String(), nil
}

// pre increments the last numeric prerelease identifier, appending 0 when
// there is none. A preid that does not already lead the prerelease resets
// it to preid.0.
func pre(ids []blang.PRVersion, preid string) []blang.PRVersion {
	out := append([]blang.PRVersion(nil), ids...)

	if len(out) == 0 {
		out = []blang.PRVersion{num(0)}
	} else {
		bumped := false
		for i := len(out) - 1; i >= 0; i-- {
			if out[i].IsNum {
				out[i] = num(out[i].VersionNum + 1)
				bumped = true
				break
			}
		}
		if !bumped {
			out = append(out, num(0))
		}
	}

	if preid == "" {
		return out
	}
	if out[0].IsNum || out[0].VersionStr != preid || len(out) < 2 || !out[1].IsNum {
		return []blang.PRVersion{{VersionStr: preid}, num(0)}
	}
	return out
}

func num(n uint64) blang.PRVersion {
	return blang.PRVersion{VersionNum: n, IsNum: true}
}

// Compare returns -1, 0 or 1 as a is lower, equal or higher than b.
func Compare(a, b string) (int, error) {
	va, err := blang.Parse(strings.TrimPrefix(a, "v"))
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidBump, "invalid version "+a, err)
	}
	vb, err := blang.Parse(strings.TrimPrefix(b, "v"))
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidBump, "invalid version "+b, err)
	}
	return va.Compare(vb), nil
}

// Max returns the highest of versions.
func Max(versions ...string) (string, error) {
	var best string
	for _, v := range versions {
		if best == "" {
			if !Valid(strings.TrimPrefix(v, "v")) {
				return "", errors.New(errors.ErrCodeInvalidBump, "invalid version "+v)
			}
			best = v
			continue
		}
		c, err := Compare(v, best)
		if err != nil {
			return "", err
		}
		if c > 0 {
			best = v
		}
	}
	return best, nil
}
