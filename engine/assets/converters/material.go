package converters

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const MaterialVersion = 1

const materialTemplate = `# material
name = %s
shader = Builtin.MaterialShader
diffuse_colour = 1.0 1.0 1.0 1.0
shininess = 8.0
autorelease = true
`

type MaterialConverter struct{}

func (mc *MaterialConverter) Suffixes() []string { return []string{"amt"} }

func (mc *MaterialConverter) ContentType() string { return resources.ResourceTypeMaterial.String() }

func (mc *MaterialConverter) CreateSettings() *assets.Settings {
	return assets.NewSettings(resources.ResourceTypeMaterial.String(), MaterialVersion)
}

func (mc *MaterialConverter) ConvertFile(s *assets.Settings) assets.ReturnCode {
	file, err := os.Open(s.Source())
	if err != nil {
		return assets.InternalError
	}
	defer file.Close()

	material, err := parseAMT(file)
	if err != nil {
		core.LogError("%s: %s", s.Source(), err)
		return assets.Unsupported
	}
	return s.SaveBinary(resources.ResourceTypeMaterial, MaterialVersion, material, s.AbsoluteDestination())
}

func (mc *MaterialConverter) TemplatePath() string { return ".embedded/material.amt" }

func (mc *MaterialConverter) CreateFromTemplate(dst string) error {
	name := strings.TrimSuffix(filepath.Base(dst), filepath.Ext(dst))
	return os.WriteFile(dst, []byte(fmt.Sprintf(materialTemplate, name)), 0o644)
}

// RenameAsset keeps the material name in step with its file name.
func (mc *MaterialConverter) RenameAsset(s *assets.Settings, oldName, newName string) {
	data, err := os.ReadFile(s.Source())
	if err != nil {
		return
	}
	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 && strings.TrimSpace(parts[0]) == "name" && strings.TrimSpace(parts[1]) == oldName {
			lines[i] = "name = " + newName
			changed = true
		}
	}
	if changed {
		os.WriteFile(s.Source(), []byte(strings.Join(lines, "\n")), 0o644)
	}
}

func parseAMT(r io.Reader) (*resources.MaterialData, error) {
	scanner := bufio.NewScanner(r)
	materialConfig := &resources.MaterialData{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			core.LogWarn("skipping invalid line: %s", line)
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "name":
			materialConfig.Name = value
		case "shader":
			materialConfig.ShaderName = value
		case "diffuse_colour":
			colourValues := strings.Fields(value)
			if len(colourValues) != 4 {
				return nil, fmt.Errorf("invalid diffuse_colour, expected 4 values: %s", line)
			}
			for i, v := range colourValues {
				f, err := strconv.ParseFloat(v, 32)
				if err != nil {
					return nil, fmt.Errorf("invalid diffuse_colour value: %s", v)
				}
				materialConfig.DiffuseColour[i] = float32(f)
			}
		case "shininess":
			shininess, err := strconv.ParseFloat(value, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid shininess value: %s", value)
			}
			materialConfig.Shininess = float32(shininess)
		case "diffuse_map_name":
			materialConfig.DiffuseMapName = value
		case "specular_map_name":
			materialConfig.SpecularMapName = value
		case "normal_map_name":
			materialConfig.NormalMapName = value
		case "autorelease":
			autoRelease, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("invalid autorelease value: %s", value)
			}
			materialConfig.AutoRelease = autoRelease
		default:
			core.LogWarn("unknown key '%s' in material, skipping", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := validateMaterial(materialConfig); err != nil {
		return nil, err
	}
	return materialConfig, nil
}

func validateMaterial(material *resources.MaterialData) error {
	if material.Name == "" {
		return fmt.Errorf("material name is required")
	}
	if material.ShaderName == "" {
		return fmt.Errorf("shader name is required")
	}
	for _, c := range material.DiffuseColour {
		if c < 0 || c > 1 {
			return fmt.Errorf("diffuse_colour values must be between 0.0 and 1.0")
		}
	}
	if material.Shininess < 0 {
		return fmt.Errorf("shininess must be a non-negative value")
	}
	return nil
}
