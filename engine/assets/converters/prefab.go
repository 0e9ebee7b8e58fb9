package converters

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const PrefabVersion = 3

type prefabSource struct {
	Objects []prefabSourceObject `yaml:"objects"`
}

type prefabSourceObject struct {
	ID         string                  `yaml:"id,omitempty"`
	Name       string                  `yaml:"name"`
	Parent     string                  `yaml:"parent,omitempty"`
	Components []prefabSourceComponent `yaml:"components,omitempty"`
}

type prefabSourceComponent struct {
	Type       string            `yaml:"type"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// PrefabConverter imports object hierarchies. Sources written by older
// versions are upgraded in place before conversion.
type PrefabConverter struct{}

func (pc *PrefabConverter) Suffixes() []string { return []string{"fab"} }

func (pc *PrefabConverter) ContentType() string { return resources.ResourceTypePrefab.String() }

func (pc *PrefabConverter) CreateSettings() *assets.Settings {
	return assets.NewSettings(resources.ResourceTypePrefab.String(), PrefabVersion)
}

func (pc *PrefabConverter) TemplatePath() string { return ".embedded/prefab.fab" }

func (pc *PrefabConverter) CreateFromTemplate(dst string) error {
	doc := prefabSource{Objects: []prefabSourceObject{{
		ID:   core.NewResourceID(),
		Name: strings.TrimSuffix(filepath.Base(dst), filepath.Ext(dst)),
		Components: []prefabSourceComponent{{
			Type:       "Transform",
			Properties: map[string]string{"position": "0 0 0", "quaternion": "0 0 0 1", "scale": "1 1 1"},
		}},
	}}}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (pc *PrefabConverter) ConvertFile(s *assets.Settings) assets.ReturnCode {
	data, err := os.ReadFile(s.Source())
	if err != nil {
		return assets.InternalError
	}
	var doc prefabSource
	if err := yaml.Unmarshal(data, &doc); err != nil {
		core.LogError("failed to parse prefab %s: %s", s.Source(), err)
		return assets.InternalError
	}

	if migratePrefab(&doc, s.CurrentVersion()) {
		out, err := yaml.Marshal(&doc)
		if err != nil {
			return assets.InternalError
		}
		if err := os.WriteFile(s.Source(), out, 0o644); err != nil {
			core.LogError("cannot write upgraded prefab %s: %s", s.Source(), err)
			return assets.InternalError
		}
		core.LogInfo("upgraded %s to format %d", filepath.Base(s.Source()), PrefabVersion)
	}

	return s.SaveBinary(resources.ResourceTypePrefab, PrefabVersion, buildPrefab(&doc), s.AbsoluteDestination())
}

// migratePrefab applies every upgrade step after from. It reports whether
// the document changed.
func migratePrefab(doc *prefabSource, from uint32) bool {
	update := false
	switch from {
	case 0:
		update = toVersion1(doc) || update
		fallthrough
	case 1:
		update = toVersion2(doc) || update
		fallthrough
	case 2:
		update = toVersion3(doc) || update
	}
	return update
}

var legacyPropertyNames = strings.NewReplacer(
	"_Rotation", "quaternion",
	"Use_Kerning", "kerning",
	"Audio_Clip", "clip",
)

// toVersion1 normalises property names to lower camel case.
func toVersion1(doc *prefabSource) bool {
	for i := range doc.Objects {
		for j := range doc.Objects[i].Components {
			c := &doc.Objects[i].Components[j]
			if len(c.Properties) == 0 {
				continue
			}
			props := make(map[string]string, len(c.Properties))
			for key, value := range c.Properties {
				props[normalizeProperty(key)] = value
			}
			c.Properties = props
		}
	}
	return true
}

func normalizeProperty(key string) string {
	key = legacyPropertyNames.Replace(key)
	key = strings.ReplaceAll(key, "_", "")
	if key == "" {
		return key
	}
	return strings.ToLower(key[:1]) + key[1:]
}

// toVersion2 gives every object an identifier and turns parent names into
// parent identifiers.
func toVersion2(doc *prefabSource) bool {
	changed := false
	byName := make(map[string]string)
	for i := range doc.Objects {
		o := &doc.Objects[i]
		if o.ID == "" {
			o.ID = core.NewResourceID()
			changed = true
		}
		if _, ok := byName[o.Name]; !ok {
			byName[o.Name] = o.ID
		}
	}
	ids := make(map[string]bool, len(doc.Objects))
	for _, o := range doc.Objects {
		ids[o.ID] = true
	}
	for i := range doc.Objects {
		o := &doc.Objects[i]
		if o.Parent == "" || ids[o.Parent] {
			continue
		}
		if id, ok := byName[o.Parent]; ok {
			o.Parent = id
			changed = true
		}
	}
	return changed
}

// toVersion3 changed only the binary layout.
func toVersion3(doc *prefabSource) bool {
	return false
}

func buildPrefab(doc *prefabSource) resources.PrefabData {
	out := resources.PrefabData{Version: PrefabVersion}
	for _, o := range doc.Objects {
		obj := resources.PrefabObject{ID: o.ID, Name: o.Name, Parent: o.Parent}
		for _, c := range o.Components {
			comp := resources.PrefabComponent{Type: c.Type}
			keys := make([]string, 0, len(c.Properties))
			for k := range c.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				comp.Properties = append(comp.Properties, resources.PrefabProperty{Key: k, Value: c.Properties[k]})
			}
			obj.Components = append(obj.Components, comp)
		}
		out.Objects = append(out.Objects, obj)
	}
	return out
}
