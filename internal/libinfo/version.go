/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo exposes the version of this module as seen in the build info of the running binary.
package libinfo

import (
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const moduleName = "github.com/acronis/go-apidispatch"

// PrometheusLibVersionLabel is the const label attached to every collector of this module.
const PrometheusLibVersionLabel = "apidispatch_version"

const unknownVersion = "v0.0.0"

var modulePathRe = regexp.MustCompile(`^` + regexp.QuoteMeta(moduleName) + `(/v[0-9]+)?$`)

// AddPrometheusLibVersionLabel returns a copy of labels extended with the module version label.
func AddPrometheusLibVersionLabel(labels prometheus.Labels) prometheus.Labels {
	res := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		res[k] = v
	}
	res[PrometheusLibVersionLabel] = GetLibVersion()
	return res
}

var (
	libVersion     string
	libVersionOnce sync.Once
)

// GetLibVersion returns the module version, or v0.0.0 when it cannot be determined.
func GetLibVersion() string {
	libVersionOnce.Do(func() {
		buildInfo, _ := debug.ReadBuildInfo()
		if libVersion = extractLibVersion(buildInfo); libVersion == "" {
			libVersion = unknownVersion
		}
	})
	return libVersion
}

// extractLibVersion looks the module up among dependencies first and falls back to the main module,
// which is the case for binaries built from this repository (e.g. examples).
func extractLibVersion(buildInfo *debug.BuildInfo) string {
	if buildInfo == nil {
		return ""
	}
	for _, dep := range buildInfo.Deps {
		if modulePathRe.MatchString(dep.Path) {
			return dep.Version
		}
	}
	if modulePathRe.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	return ""
}
