// Package common holds process-wide helpers shared by the land registry binaries.
package common

// Version is overridden at build time with -ldflags "-X github.com/ruteri/land-registry/common.Version=..."
var Version = "dev"

// PackageName is used as the metrics namespace and default log service tag.
const PackageName = "land_registry"
