package platform

import (
	"runtime"

	"golang.org/x/exp/slices"
)

const (
	Desktop = "desktop"
	Web     = "web"
)

// Platform describes a build target.
type Platform struct {
	Name string
	// GOOS/GOARCH handed to the toolchain. Empty means the host values.
	GOOS   string
	GOARCH string
	// Architectures the target can be built for; the first one is the default.
	Architectures []string
	// IsPackage is set for targets whose artifact is self-contained. Their
	// assets are embedded at build time rather than shipped as base.pak.
	IsPackage bool
	// ArtifactSuffix is appended to the project identifier to name the build output.
	ArtifactSuffix string
}

var known = []Platform{
	{
		Name:          Desktop,
		GOOS:          runtime.GOOS,
		GOARCH:        runtime.GOARCH,
		Architectures: []string{runtime.GOARCH},
	},
	{
		Name:           Web,
		GOOS:           "js",
		GOARCH:         "wasm",
		Architectures:  []string{"wasm"},
		IsPackage:      true,
		ArtifactSuffix: ".wasm",
	},
}

// Lookup returns the descriptor for name. An empty name is the host desktop.
func Lookup(name string) (Platform, bool) {
	if name == "" {
		name = Desktop
	}
	for _, p := range known {
		if p.Name == name {
			return p, true
		}
	}
	return Platform{}, false
}

func Names() []string {
	out := make([]string, 0, len(known))
	for _, p := range known {
		out = append(out, p.Name)
	}
	slices.Sort(out)
	return out
}

func Host() Platform {
	p, _ := Lookup(Desktop)
	return p
}

func (p Platform) DefaultArchitecture() string {
	if len(p.Architectures) == 0 {
		return runtime.GOARCH
	}
	return p.Architectures[0]
}

func (p Platform) SupportsArchitecture(arch string) bool {
	return slices.Contains(p.Architectures, arch)
}

func (p Platform) ExecutableSuffix() string {
	if p.ArtifactSuffix != "" {
		return p.ArtifactSuffix
	}
	if p.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
