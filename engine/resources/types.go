package resources

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/anima-builder/engine/core"
)

type ResourceType uint16

/** @brief Pre-defined resource types. */
const (
	/** @brief Text resource type. */
	ResourceTypeText ResourceType = iota
	/** @brief Binary resource type. */
	ResourceTypeBinary
	/** @brief Texture resource type (decoded pixels plus mip chain). */
	ResourceTypeTexture
	/** @brief Material resource type. */
	ResourceTypeMaterial
	/** @brief Shader resource type (compiled SPIR-V). */
	ResourceTypeShader
	/** @brief Mesh resource type (one geometry group). */
	ResourceTypeMesh
	/** @brief Model resource type (list of mesh sub-resources). */
	ResourceTypeModel
	/** @brief Bitmap font resource type. */
	ResourceTypeBitmapFont
	/** @brief System font resource type. */
	ResourceTypeSystemFont
	/** @brief Prefab resource type. */
	ResourceTypePrefab
	/** @brief Compiled game module. Never packaged through the import directory. */
	ResourceTypeCode
	/** @brief Custom resource type. Used by converters outside the core builder. */
	ResourceTypeCustom
)

var resourceTypeNames = [...]string{
	ResourceTypeText:       "Text",
	ResourceTypeBinary:     "Binary",
	ResourceTypeTexture:    "Texture",
	ResourceTypeMaterial:   "Material",
	ResourceTypeShader:     "Shader",
	ResourceTypeMesh:       "Mesh",
	ResourceTypeModel:      "Model",
	ResourceTypeBitmapFont: "BitmapFont",
	ResourceTypeSystemFont: "SystemFont",
	ResourceTypePrefab:     "Prefab",
	ResourceTypeCode:       "Code",
	ResourceTypeCustom:     "Custom",
}

func (t ResourceType) String() string {
	if int(t) < len(resourceTypeNames) {
		return resourceTypeNames[t]
	}
	return fmt.Sprintf("ResourceType(%d)", uint16(t))
}

// ParseResourceType maps a type tag as written in sidecar files back to its value.
func ParseResourceType(name string) (ResourceType, bool) {
	for i, n := range resourceTypeNames {
		if n == name {
			return ResourceType(i), true
		}
	}
	return ResourceTypeCustom, false
}

/** @brief A magic number indicating the file as an anima binary file. */
const ResourceMagic uint32 = 0xdaaaadd1

/**
 * @brief The header data for binary resource types.
 */
type ResourceHeader struct {
	/** @brief A magic number indicating the file as an anima binary file. */
	MagicNumber uint32
	/** @brief The resource type. */
	ResourceType ResourceType
	/** @brief The format version this resource uses. */
	Version uint8
	/** @brief Reserved for future header data. */
	Reserved uint8
}

func init() {
	// gob assigns wire type ids on first use; pinning the order keeps encoded
	// resources byte-identical between runs.
	for _, payload := range []interface{}{
		TextData{}, BinaryData{}, TextureData{}, MaterialData{}, ShaderData{},
		MeshData{}, ModelData{}, BitmapFontData{}, SystemFontData{}, PrefabData{},
	} {
		_ = gob.NewEncoder(io.Discard).Encode(payload)
	}
}

// EncodeResource serialises header and payload. Payload types must not
// contain maps so that output is deterministic.
func EncodeResource(t ResourceType, version uint8, payload interface{}) ([]byte, error) {
	var buf bytes.Buffer
	header := ResourceHeader{
		MagicNumber:  ResourceMagic,
		ResourceType: t,
		Version:      version,
	}
	if err := binary.Write(&buf, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidPayload, err)
	}
	return buf.Bytes(), nil
}

// WriteResource encodes the resource and writes it to path. The file is
// replaced only when encoding and writing fully succeed.
func WriteResource(path string, t ResourceType, version uint8, payload interface{}) error {
	data, err := EncodeResource(t, version, payload)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".resource-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadHeader reads and validates the header of a binary resource.
func ReadHeader(r io.Reader) (ResourceHeader, error) {
	var header ResourceHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return header, err
	}
	if header.MagicNumber != ResourceMagic {
		return header, fmt.Errorf("%w: bad magic 0x%x", core.ErrInvalidPayload, header.MagicNumber)
	}
	return header, nil
}

// DecodeResource reads a header and decodes the payload into out.
func DecodeResource(r io.Reader, out interface{}) (ResourceHeader, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return header, err
	}
	if err := gob.NewDecoder(r).Decode(out); err != nil {
		return header, fmt.Errorf("%w: %v", core.ErrInvalidPayload, err)
	}
	return header, nil
}

func ReadResource(path string, out interface{}) (ResourceHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return ResourceHeader{}, err
	}
	defer f.Close()
	return DecodeResource(f, out)
}
