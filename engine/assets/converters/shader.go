package converters

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/process"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const ShaderVersion = 1

const shaderCompileTimeout = 2 * time.Minute

// ShaderConverter compiles GLSL stages to SPIR-V with an external compiler.
type ShaderConverter struct {
	// Compiler is the glslc compatible executable. Defaults to glslc on PATH.
	Compiler string

	logger *core.Logger
}

func NewShaderConverter() *ShaderConverter {
	return &ShaderConverter{Compiler: "glslc", logger: core.NewLogger("ShaderConverter")}
}

// Init reports a missing compiler early. Shaders fail to convert until it
// is installed.
func (sc *ShaderConverter) Init() error {
	if _, err := exec.LookPath(sc.Compiler); err != nil {
		sc.logger.Warnf("%s not found, shaders will not be compiled", sc.Compiler)
	}
	return nil
}

func (sc *ShaderConverter) Suffixes() []string {
	return []string{"vert", "frag", "geom", "comp", "glsl"}
}

func (sc *ShaderConverter) ContentType() string { return resources.ResourceTypeShader.String() }

func (sc *ShaderConverter) CreateSettings() *assets.Settings {
	return assets.NewSettings(resources.ResourceTypeShader.String(), ShaderVersion)
}

func shaderStage(path string) (resources.ShaderStage, string) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "vert":
		return resources.ShaderStageVertex, "vertex"
	case "frag":
		return resources.ShaderStageFragment, "fragment"
	case "geom":
		return resources.ShaderStageGeometry, "geometry"
	case "comp":
		return resources.ShaderStageCompute, "compute"
	}
	return 0, ""
}

func (sc *ShaderConverter) ConvertFile(s *assets.Settings) assets.ReturnCode {
	stage, stageName := shaderStage(s.Source())
	if stageName == "" {
		stageName = s.Option("stage", "")
		switch stageName {
		case "vertex":
			stage = resources.ShaderStageVertex
		case "fragment":
			stage = resources.ShaderStageFragment
		case "geometry":
			stage = resources.ShaderStageGeometry
		case "compute":
			stage = resources.ShaderStageCompute
		default:
			sc.logger.Errorf("%s: set the stage option for .glsl sources", s.Source())
			return assets.Unsupported
		}
	}
	entry := s.Option("entry", "main")

	tmp, err := os.CreateTemp("", "shader-*.spv")
	if err != nil {
		return assets.InternalError
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	ctx, cancel := context.WithTimeout(context.Background(), shaderCompileTimeout)
	defer cancel()

	args := []string{
		"-fshader-stage=" + stageName,
		"-fentry-point=" + entry,
		"-o", tmp.Name(),
		s.Source(),
	}
	res, err := process.Run(ctx, filepath.Dir(s.Source()), nil, sc.Compiler, args...)
	if err != nil {
		sc.logger.Errorf("cannot run %s: %s", sc.Compiler, err)
		return assets.InternalError
	}
	if res.ExitCode != 0 {
		sc.logger.Errorf("%s failed with code %d:\n%s", sc.Compiler, res.ExitCode, res.Stderr)
		return assets.InternalError
	}

	spirv, err := os.ReadFile(tmp.Name())
	if err != nil {
		return assets.InternalError
	}
	words, ok := bytesToWords(spirv)
	if !ok {
		sc.logger.Errorf("%s produced a truncated module", sc.Compiler)
		return assets.InternalError
	}

	return s.SaveBinary(resources.ResourceTypeShader, ShaderVersion, resources.ShaderData{
		Name:  filepath.Base(s.Source()),
		Stage: stage,
		Entry: entry,
		Code:  words,
	}, s.AbsoluteDestination())
}
