package resources

/** @brief Payload of a text resource. */
type TextData struct {
	Name string
	Text string
}

/** @brief Payload of a raw binary resource, stored as little-endian words. */
type BinaryData struct {
	Name  string
	Words []uint32
}

/** @brief One level of a texture mip chain. Level 0 is the source image. */
type MipLevel struct {
	Width  uint32
	Height uint32
	Pixels []uint8
}

/**
 * @brief A structure to hold texture resource data.
 */
type TextureData struct {
	/** @brief The texture name. */
	Name string
	/** @brief The source encoding (png, jpeg, ...). */
	Format string
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief The number of channels. Always 4, pixels are RGBA. */
	ChannelCount uint8
	/** @brief Indicates if any pixel is not fully opaque. */
	HasTransparency bool
	/** @brief Filtering mode for minification. */
	FilterMinify TextureFilter
	/** @brief Filtering mode for magnification. */
	FilterMagnify TextureFilter
	/** @brief The repeat mode on U and V. */
	Repeat TextureRepeat
	/** @brief Mip levels, largest first. */
	Levels []MipLevel
}

/** @brief Represents supported texture filtering modes. */
type TextureFilter int

const (
	/** @brief Nearest-neighbor filtering. */
	TextureFilterModeNearest TextureFilter = 0x0
	/** @brief Linear (i.e. bilinear) filtering.*/
	TextureFilterModeLinear TextureFilter = 0x1
)

type TextureRepeat int

const (
	TextureRepeatRepeat         TextureRepeat = 0x1
	TextureRepeatMirroredRepeat TextureRepeat = 0x2
	TextureRepeatClampToEdge    TextureRepeat = 0x3
	TextureRepeatClampToBorder  TextureRepeat = 0x4
)

/**
 * @brief Material configuration as loaded from an .amt source.
 */
type MaterialData struct {
	/** @brief The name of the material. */
	Name string
	/** @brief The shader the material is rendered with. */
	ShaderName string
	/** @brief Indicates if the material should be automatically released when no references to it remain. */
	AutoRelease bool
	/** @brief The diffuse colour of the material, RGBA. */
	DiffuseColour [4]float32
	/** @brief The shininess of the material. */
	Shininess float32
	/** @brief The diffuse map name. */
	DiffuseMapName string
	/** @brief The specular map name. */
	SpecularMapName string
	/** @brief The normal map name. */
	NormalMapName string
}

/** @brief Shader stages available in the system. */
type ShaderStage int

const (
	ShaderStageVertex   ShaderStage = 0x00000001
	ShaderStageGeometry ShaderStage = 0x00000002
	ShaderStageFragment ShaderStage = 0x00000004
	ShaderStageCompute  ShaderStage = 0x0000008
)

/** @brief Compiled shader stage. */
type ShaderData struct {
	Name  string
	Stage ShaderStage
	Entry string
	Code  []uint32
}

/**
 * @brief One geometry group. Vertex attributes are flattened:
 * three floats per position and normal, two per texture coordinate.
 */
type MeshData struct {
	Name      string
	Positions []float32
	Normals   []float32
	UVs       []float32
	Indices   []uint32
	/** @brief The minimum corner of the bounding box. */
	Min [3]float32
	/** @brief The maximum corner of the bounding box. */
	Max [3]float32
}

/** @brief Reference from a model to one of its mesh sub-resources. */
type ModelMesh struct {
	Name string
	UUID string
}

type ModelData struct {
	Name   string
	Meshes []ModelMesh
}

type FontGlyph struct {
	Codepoint int32
	X         uint16
	Y         uint16
	Width     uint16
	Height    uint16
	XOffset   int16
	YOffset   int16
	XAdvance  int16
	PageID    uint8
}

type FontKerning struct {
	Codepoint0 int32
	Codepoint1 int32
	Amount     int16
}

/** @brief A bitmap font atlas page. UUID refers to the page texture sub-resource. */
type FontPage struct {
	ID   int
	File string
	UUID string
}

type BitmapFontData struct {
	Face        string
	Size        int
	LineHeight  int
	Baseline    int
	AtlasWidth  int
	AtlasHeight int
	Glyphs      []FontGlyph
	Kernings    []FontKerning
	Pages       []FontPage
}

type SystemFontData struct {
	Name       string
	File       string
	Faces      []string
	FontBinary []byte
}

/** @brief A component property, kept as an ordered pair list. */
type PrefabProperty struct {
	Key   string
	Value string
}

type PrefabComponent struct {
	Type       string
	Properties []PrefabProperty
}

type PrefabObject struct {
	ID         string
	Name       string
	Parent     string
	Components []PrefabComponent
}

type PrefabData struct {
	Version uint8
	Objects []PrefabObject
}
