// Package model describes the identities and values shared across the
// build publisher: builds, their content types, binary packages and
// package-level changes.
package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/enku/gentoo-build-publisher/pkg/errors"
)

// ErrInvalidBuild is returned when a build identifier is not in
// machine.number form
var ErrInvalidBuild = errors.New("invalid build identifier")

// Build identifies one CI build of one machine.
//
// Machines own an open-ended, not necessarily contiguous sequence of
// build numbers. The canonical string form is "machine.number".
type Build struct {
	Machine string `json:"machine" yaml:"machine"`
	Number  int    `json:"number" yaml:"number"`
}

// NewBuild creates a build identifier
func NewBuild(machine string, number int) Build {
	return Build{Machine: machine, Number: number}
}

// ParseBuild parses the "machine.number" string form
func ParseBuild(id string) (Build, error) {
	machine, number, found := strings.Cut(id, ".")
	if !found || machine == "" || number == "" {
		return Build{}, ErrInvalidBuild.WrapMessage("%q", id)
	}
	n, err := strconv.Atoi(number)
	if err != nil {
		return Build{}, ErrInvalidBuild.Wrap(err)
	}
	return Build{Machine: machine, Number: n}, nil
}

// ID is the canonical string form
func (b Build) ID() string {
	return fmt.Sprintf("%s.%d", b.Machine, b.Number)
}

func (b Build) String() string {
	return b.ID()
}

// IsZero reports an unset build identifier
func (b Build) IsZero() bool {
	return b.Machine == "" && b.Number == 0
}
