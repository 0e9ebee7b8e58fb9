package converters

import (
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const TextVersion = 1

type TextConverter struct{}

func (tc *TextConverter) Suffixes() []string {
	return []string{"txt", "json", "yaml", "yml", "md", "csv", "xml"}
}

func (tc *TextConverter) ContentType() string { return resources.ResourceTypeText.String() }

func (tc *TextConverter) CreateSettings() *assets.Settings {
	return assets.NewSettings(resources.ResourceTypeText.String(), TextVersion)
}

func (tc *TextConverter) ConvertFile(s *assets.Settings) assets.ReturnCode {
	data, err := os.ReadFile(s.Source())
	if err != nil {
		return assets.InternalError
	}
	if !utf8.Valid(data) {
		core.LogWarn("%s is not valid UTF-8", s.Source())
		return assets.Unsupported
	}
	return s.SaveBinary(resources.ResourceTypeText, TextVersion, resources.TextData{
		Name: filepath.Base(s.Source()),
		Text: string(data),
	}, s.AbsoluteDestination())
}
