package model

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/enku/gentoo-build-publisher/pkg/errors"
)

// ErrInvalidPackage is returned when a Packages index section is missing
// required values
var ErrInvalidPackage = errors.New("invalid package entry")

// Package is a Gentoo binary package as listed in a build's binpkgs
// Packages index
type Package struct {
	CPV       string `json:"cpv"`
	Repo      string `json:"repo"`
	Path      string `json:"path"`
	BuildID   int    `json:"build_id"`
	Size      int64  `json:"size"`
	BuildTime int64  `json:"build_time"`
}

// CPVB is the cpv plus the binpkg build id, e.g. app-foo/foo-1.0-3
func (p Package) CPVB() string {
	return fmt.Sprintf("%s-%d", p.CPV, p.BuildID)
}

// CN is the category/name part of the cpv, the identity used by the diff
// engine: two packages with equal CN but different versions are one
// changed package.
func (p Package) CN() string {
	cn, _ := SplitCPV(p.CPV)
	return cn
}

// Version is the version-revision part of the cpv
func (p Package) Version() string {
	_, v := SplitCPV(p.CPV)
	return v
}

// SplitCPV splits a category/package-version atom into its category/name
// identity and its version string. The version starts at the first
// hyphen followed by a digit, per portage naming rules.
func SplitCPV(cpv string) (cn, version string) {
	for i := 0; i < len(cpv)-1; i++ {
		if cpv[i] == '-' && cpv[i+1] >= '0' && cpv[i+1] <= '9' {
			return cpv[:i], cpv[i+1:]
		}
	}
	return cpv, ""
}

// ParsePackages reads a portage Packages index file and returns the
// package list. The preamble block is skipped; every following block is
// one package described by "NAME: value" lines.
func ParsePackages(r io.Reader) ([]Package, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	// preamble ends at the first blank line
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			break
		}
	}

	var (
		packages []Package
		section  = map[string]string{}
	)
	flush := func() error {
		if len(section) == 0 {
			return nil
		}
		pkg, err := packageFromSection(section)
		if err != nil {
			return err
		}
		packages = append(packages, pkg)
		section = map[string]string{}
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		section[strings.ToUpper(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return packages, nil
}

func packageFromSection(section map[string]string) (Package, error) {
	var (
		pkg Package
		err error
	)
	for _, required := range []string{"CPV", "REPO", "PATH", "BUILD_ID", "SIZE", "BUILD_TIME"} {
		if _, ok := section[required]; !ok {
			return Package{}, ErrInvalidPackage.WrapMessage("missing %s value", required)
		}
	}
	pkg.CPV = section["CPV"]
	pkg.Repo = section["REPO"]
	pkg.Path = section["PATH"]
	if pkg.BuildID, err = strconv.Atoi(section["BUILD_ID"]); err != nil {
		return Package{}, ErrInvalidPackage.Wrap(err)
	}
	if pkg.Size, err = strconv.ParseInt(section["SIZE"], 10, 64); err != nil {
		return Package{}, ErrInvalidPackage.Wrap(err)
	}
	if pkg.BuildTime, err = strconv.ParseInt(section["BUILD_TIME"], 10, 64); err != nil {
		return Package{}, ErrInvalidPackage.Wrap(err)
	}
	return pkg, nil
}
