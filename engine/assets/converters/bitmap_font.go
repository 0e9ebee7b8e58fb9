package converters

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fzipp/bmfont"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const BitmapFontVersion = 1

// BitmapFontConverter imports AngelCode .fnt descriptors. Every atlas page
// becomes a texture sub-resource named page<N>.
type BitmapFontConverter struct{}

func (fc *BitmapFontConverter) Suffixes() []string { return []string{"fnt"} }

func (fc *BitmapFontConverter) ContentType() string {
	return resources.ResourceTypeBitmapFont.String()
}

func (fc *BitmapFontConverter) CreateSettings() *assets.Settings {
	return assets.NewSettings(resources.ResourceTypeBitmapFont.String(), BitmapFontVersion)
}

func (fc *BitmapFontConverter) ConvertFile(s *assets.Settings) assets.ReturnCode {
	font, err := bmfont.Load(s.Source())
	if err != nil {
		core.LogError("failed to load bitmap font %s: %s", s.Source(), err)
		return assets.Unsupported
	}
	d := font.Descriptor
	data := &resources.BitmapFontData{
		Face:        d.Info.Face,
		Size:        int(d.Info.Size),
		LineHeight:  int(d.Common.LineHeight),
		Baseline:    int(d.Common.Base),
		AtlasWidth:  int(d.Common.ScaleW),
		AtlasHeight: int(d.Common.ScaleH),
	}
	for _, p := range d.Pages {
		data.Pages = append(data.Pages, resources.FontPage{ID: int(p.ID), File: p.File})
	}
	for _, g := range d.Chars {
		data.Glyphs = append(data.Glyphs, resources.FontGlyph{
			Codepoint: int32(g.ID),
			X:         uint16(g.X),
			Y:         uint16(g.Y),
			Width:     uint16(g.Width),
			Height:    uint16(g.Height),
			XOffset:   int16(g.XOffset),
			YOffset:   int16(g.YOffset),
			XAdvance:  int16(g.XAdvance),
			PageID:    uint8(g.Page),
		})
	}
	for p, k := range d.Kerning {
		data.Kernings = append(data.Kernings, resources.FontKerning{
			Codepoint0: int32(p.First),
			Codepoint1: int32(p.Second),
			Amount:     int16(k.Amount),
		})
	}
	sortFontData(data)

	dir := filepath.Dir(s.Source())
	for i := range data.Pages {
		page := &data.Pages[i]
		raw, err := os.ReadFile(filepath.Join(dir, page.File))
		if err != nil {
			core.LogError("missing page %s of %s", page.File, s.Source())
			return assets.InternalError
		}
		texture, rc := decodeTexture(raw, page.File, nil)
		if rc != assets.Success {
			return rc
		}
		name := fmt.Sprintf("page%d", page.ID)
		if rc := s.SaveSubData(name, resources.ResourceTypeTexture, TextureVersion, texture); rc != assets.Success {
			return rc
		}
		page.UUID = s.SubItem(name, false)
	}

	return s.SaveBinary(resources.ResourceTypeBitmapFont, BitmapFontVersion, data, s.AbsoluteDestination())
}

// sortFontData orders pages, glyphs and kernings so the resource bytes do
// not depend on map iteration.
func sortFontData(out *resources.BitmapFontData) {
	slices.SortFunc(out.Pages, func(a, b resources.FontPage) int { return a.ID - b.ID })
	slices.SortFunc(out.Glyphs, func(a, b resources.FontGlyph) int {
		return int(a.Codepoint) - int(b.Codepoint)
	})
	slices.SortFunc(out.Kernings, func(a, b resources.FontKerning) int {
		if a.Codepoint0 != b.Codepoint0 {
			return int(a.Codepoint0) - int(b.Codepoint0)
		}
		return int(a.Codepoint1) - int(b.Codepoint1)
	})
}
