package converters

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const TextureVersion = 2

const (
	TextureOptionMipmaps = "mipmaps"
	TextureOptionFilter  = "filter"
	TextureOptionWrap    = "wrap"
)

type TextureConverter struct{}

func (tc *TextureConverter) Suffixes() []string {
	return []string{"png", "jpg", "jpeg", "bmp", "tif", "tiff", "webp", "tex"}
}

func (tc *TextureConverter) ContentType() string { return resources.ResourceTypeTexture.String() }

func (tc *TextureConverter) CreateSettings() *assets.Settings {
	return assets.NewSettings(resources.ResourceTypeTexture.String(), TextureVersion)
}

func (tc *TextureConverter) ConvertFile(s *assets.Settings) assets.ReturnCode {
	data, err := os.ReadFile(s.Source())
	if err != nil {
		return assets.InternalError
	}
	texture, rc := decodeTexture(data, filepath.Base(s.Source()), s)
	if rc != assets.Success {
		return rc
	}
	return s.SaveBinary(resources.ResourceTypeTexture, TextureVersion, texture, s.AbsoluteDestination())
}

// decodeTexture turns encoded image bytes into a texture payload. Import
// options come from s when it is not nil.
func decodeTexture(data []byte, name string, s *assets.Settings) (*resources.TextureData, assets.ReturnCode) {
	if !filetype.IsImage(data) {
		core.LogWarn("%s is not an image", name)
		return nil, assets.Unsupported
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		core.LogError("failed to decode %s: %s", name, err)
		return nil, assets.Unsupported
	}

	option := func(key, def string) string {
		if s == nil {
			return def
		}
		return s.Option(key, def)
	}

	rgba := toRGBA(img)
	b := rgba.Bounds()
	texture := &resources.TextureData{
		Name:            name,
		Format:          format,
		Width:           uint32(b.Dx()),
		Height:          uint32(b.Dy()),
		ChannelCount:    4,
		HasTransparency: hasTransparency(rgba),
		FilterMinify:    resources.TextureFilterModeLinear,
		FilterMagnify:   resources.TextureFilterModeLinear,
		Repeat:          resources.TextureRepeatRepeat,
	}
	if option(TextureOptionFilter, "linear") == "nearest" {
		texture.FilterMinify = resources.TextureFilterModeNearest
		texture.FilterMagnify = resources.TextureFilterModeNearest
	}
	switch option(TextureOptionWrap, "repeat") {
	case "mirror":
		texture.Repeat = resources.TextureRepeatMirroredRepeat
	case "clamp":
		texture.Repeat = resources.TextureRepeatClampToEdge
	case "border":
		texture.Repeat = resources.TextureRepeatClampToBorder
	}

	texture.Levels = append(texture.Levels, level(rgba))
	if option(TextureOptionMipmaps, "true") == "true" {
		for current := rgba; current.Bounds().Dx() > 1 || current.Bounds().Dy() > 1; {
			w := max(current.Bounds().Dx()/2, 1)
			h := max(current.Bounds().Dy()/2, 1)
			next := image.NewRGBA(image.Rect(0, 0, w, h))
			draw.ApproxBiLinear.Scale(next, next.Bounds(), current, current.Bounds(), draw.Src, nil)
			texture.Levels = append(texture.Levels, level(next))
			current = next
		}
	}
	return texture, assets.Success
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

func hasTransparency(img *image.RGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return true
		}
	}
	return false
}

func level(img *image.RGBA) resources.MipLevel {
	b := img.Bounds()
	pixels := make([]uint8, 0, b.Dx()*b.Dy()*4)
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		pixels = append(pixels, row...)
	}
	return resources.MipLevel{Width: uint32(b.Dx()), Height: uint32(b.Dy()), Pixels: pixels}
}
