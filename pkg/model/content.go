package model

import "github.com/enku/gentoo-build-publisher/pkg/errors"

// ErrInvalidContent is returned when a directory name does not map to a
// known content type
var ErrInvalidContent = errors.New("invalid content type")

// Content is one of the four trees every build artifact must carry
type Content string

const (
	// ContentRepos holds the ebuild repositories used for the build
	ContentRepos Content = "repos"

	// ContentBinPkgs holds the binary packages produced by the build
	ContentBinPkgs Content = "binpkgs"

	// ContentEtcPortage holds the portage configuration for the build
	ContentEtcPortage Content = "etc-portage"

	// ContentVarLibPortage holds the world file and friends
	ContentVarLibPortage Content = "var-lib-portage"
)

// Contents enumerates all content types. A build is only "pulled" when
// every one of these is present and committed.
func Contents() []Content {
	return []Content{ContentRepos, ContentBinPkgs, ContentEtcPortage, ContentVarLibPortage}
}

// ParseContent maps a directory name to its content type
func ParseContent(name string) (Content, error) {
	for _, content := range Contents() {
		if string(content) == name {
			return content, nil
		}
	}
	return "", ErrInvalidContent.WrapMessage("%q", name)
}

func (c Content) String() string {
	return string(c)
}
