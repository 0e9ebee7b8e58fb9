package converters

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font/opentype"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const SystemFontVersion = 1

// SystemFontConverter imports font descriptors:
//
//	file=Roboto.ttf
//	face=Roboto
//
// The font file is resolved next to the descriptor and embedded.
type SystemFontConverter struct{}

func (fc *SystemFontConverter) Suffixes() []string { return []string{"fontcfg"} }

func (fc *SystemFontConverter) ContentType() string {
	return resources.ResourceTypeSystemFont.String()
}

func (fc *SystemFontConverter) CreateSettings() *assets.Settings {
	return assets.NewSettings(resources.ResourceTypeSystemFont.String(), SystemFontVersion)
}

func (fc *SystemFontConverter) ConvertFile(s *assets.Settings) assets.ReturnCode {
	file, err := os.Open(s.Source())
	if err != nil {
		return assets.InternalError
	}
	defer file.Close()

	rd, err := parseFontConfig(file)
	if err != nil {
		core.LogError("%s: %s", s.Source(), err)
		return assets.Unsupported
	}
	rd.Name = strings.TrimSuffix(filepath.Base(s.Source()), filepath.Ext(s.Source()))

	fontBytes, err := os.ReadFile(filepath.Join(filepath.Dir(s.Source()), rd.File))
	if err != nil {
		core.LogError("%s: cannot read font file: %s", s.Source(), err)
		return assets.InternalError
	}
	collection, err := opentype.ParseCollection(fontBytes)
	if err != nil {
		core.LogError("%s: %s is not a font: %s", s.Source(), rd.File, err)
		return assets.Unsupported
	}
	if len(rd.Faces) > collection.NumFonts() {
		core.LogWarn("%s declares %d faces but %s holds %d", s.Source(), len(rd.Faces), rd.File, collection.NumFonts())
	}
	rd.FontBinary = fontBytes

	return s.SaveBinary(resources.ResourceTypeSystemFont, SystemFontVersion, rd, s.AbsoluteDestination())
}

func parseFontConfig(r io.Reader) (*resources.SystemFontData, error) {
	rd := &resources.SystemFontData{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "file=") {
			rd.File = strings.TrimPrefix(line, "file=")
		} else if strings.HasPrefix(line, "face=") {
			rd.Faces = append(rd.Faces, strings.TrimPrefix(line, "face="))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if rd.File == "" {
		return nil, fmt.Errorf("missing file= entry")
	}
	if len(rd.Faces) == 0 {
		return nil, fmt.Errorf("missing face= entry")
	}
	return rd, nil
}
