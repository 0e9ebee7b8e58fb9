package converters

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const ModelVersion = 1

// ModelConverter imports Wavefront OBJ files. Every object becomes a Mesh
// sub-resource; the model resource lists them in file order.
type ModelConverter struct{}

func (mc *ModelConverter) Suffixes() []string { return []string{"obj"} }

func (mc *ModelConverter) ContentType() string { return resources.ResourceTypeModel.String() }

func (mc *ModelConverter) CreateSettings() *assets.Settings {
	return assets.NewSettings(resources.ResourceTypeModel.String(), ModelVersion)
}

func (mc *ModelConverter) ConvertFile(s *assets.Settings) assets.ReturnCode {
	file, err := os.Open(s.Source())
	if err != nil {
		return assets.InternalError
	}
	defer file.Close()

	meshes, err := parseOBJ(file)
	if err != nil {
		core.LogError("%s: %s", s.Source(), err)
		return assets.Unsupported
	}
	if len(meshes) == 0 {
		core.LogWarn("%s has no geometry", s.Source())
		return assets.Unsupported
	}

	model := resources.ModelData{Name: strings.TrimSuffix(filepath.Base(s.Source()), filepath.Ext(s.Source()))}
	for _, mesh := range meshes {
		if rc := s.SaveSubData(mesh.Name, resources.ResourceTypeMesh, ModelVersion, mesh); rc != assets.Success {
			return rc
		}
		model.Meshes = append(model.Meshes, resources.ModelMesh{Name: mesh.Name, UUID: s.SubItem(mesh.Name, false)})
	}
	return s.SaveBinary(resources.ResourceTypeModel, ModelVersion, model, s.AbsoluteDestination())
}

type objBuilder struct {
	positions [][3]float32
	uvs       [][2]float32
	normals   [][3]float32

	meshes  []*resources.MeshData
	current *resources.MeshData
	lookup  map[string]uint32
}

func (b *objBuilder) begin(name string) {
	if b.current != nil && len(b.current.Indices) == 0 {
		b.current.Name = name
		return
	}
	for _, m := range b.meshes {
		if m.Name == name {
			name = fmt.Sprintf("%s_%d", name, len(b.meshes))
			break
		}
	}
	b.current = &resources.MeshData{Name: name}
	b.meshes = append(b.meshes, b.current)
	b.lookup = make(map[string]uint32)
}

func (b *objBuilder) vertex(ref string) (uint32, error) {
	if idx, ok := b.lookup[ref]; ok {
		return idx, nil
	}
	parts := strings.Split(ref, "/")
	pi, err := objIndex(parts[0], len(b.positions))
	if err != nil {
		return 0, err
	}
	m := b.current
	p := b.positions[pi]
	if len(m.Positions) == 0 {
		m.Min, m.Max = p, p
	}
	for i := 0; i < 3; i++ {
		m.Min[i] = float32(math.Min(float64(m.Min[i]), float64(p[i])))
		m.Max[i] = float32(math.Max(float64(m.Max[i]), float64(p[i])))
	}
	m.Positions = append(m.Positions, p[:]...)

	uv := [2]float32{}
	if len(parts) > 1 && parts[1] != "" {
		ti, err := objIndex(parts[1], len(b.uvs))
		if err != nil {
			return 0, err
		}
		uv = b.uvs[ti]
	}
	m.UVs = append(m.UVs, uv[:]...)

	n := [3]float32{}
	if len(parts) > 2 && parts[2] != "" {
		ni, err := objIndex(parts[2], len(b.normals))
		if err != nil {
			return 0, err
		}
		n = b.normals[ni]
	}
	m.Normals = append(m.Normals, n[:]...)

	idx := uint32(len(m.Positions)/3 - 1)
	b.lookup[ref] = idx
	return idx, nil
}

// objIndex resolves a one-based, possibly negative, OBJ reference.
func objIndex(s string, count int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	if i < 0 {
		i = count + i
	} else {
		i--
	}
	if i < 0 || i >= count {
		return 0, fmt.Errorf("index %s out of range", s)
	}
	return i, nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

func parseOBJ(r io.Reader) ([]*resources.MeshData, error) {
	b := &objBuilder{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			f, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			b.positions = append(b.positions, [3]float32{f[0], f[1], f[2]})
		case "vt":
			f, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			b.uvs = append(b.uvs, [2]float32{f[0], f[1]})
		case "vn":
			f, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			b.normals = append(b.normals, [3]float32{f[0], f[1], f[2]})
		case "o":
			name := "mesh"
			if len(fields) > 1 {
				name = strings.Join(fields[1:], "_")
			}
			b.begin(name)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", line)
			}
			if b.current == nil {
				b.begin("mesh")
			}
			refs := make([]uint32, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				idx, err := b.vertex(ref)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				refs = append(refs, idx)
			}
			// Polygons are triangulated as a fan.
			for i := 1; i+1 < len(refs); i++ {
				b.current.Indices = append(b.current.Indices, refs[0], refs[i], refs[i+1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var out []*resources.MeshData
	for _, m := range b.meshes {
		if len(m.Indices) > 0 {
			out = append(out, m)
		}
	}
	return out, nil
}
