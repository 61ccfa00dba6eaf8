package model

// GBPMetadataFilename is where per-build metadata lands inside the
// binpkgs tree
const GBPMetadataFilename = "gbp.json"

// PackageMetadata summarizes the packages of one build
type PackageMetadata struct {
	Total int       `json:"total"`
	Size  int64     `json:"size"`
	Built []Package `json:"built"`
}

// GBPMetadata combines CI and package metadata. It is written to each
// pulled build's binpkgs tree as gbp.json.
type GBPMetadata struct {
	BuildDuration int64           `json:"build_duration"`
	Packages      PackageMetadata `json:"packages"`
}

// NewGBPMetadata computes the metadata blob for a pulled build given its
// package list and the CI-reported duration and start timestamp. Only
// packages built during this build (build time at or past the start
// timestamp) land in Built.
func NewGBPMetadata(duration, started int64, packages []Package) GBPMetadata {
	meta := GBPMetadata{BuildDuration: duration}
	meta.Packages.Total = len(packages)
	for _, pkg := range packages {
		meta.Packages.Size += pkg.Size
		if pkg.BuildTime >= started {
			meta.Packages.Built = append(meta.Packages.Built, pkg)
		}
	}
	return meta
}
