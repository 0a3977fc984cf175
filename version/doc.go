// Package version reports build metadata for driftfs.
//
// Version, Commit, and Date are injected at release time via -ldflags; when
// unset (development builds, go install) the package falls back to the
// module's debug.ReadBuildInfo, so `driftfs version` is meaningful either way.
package version
