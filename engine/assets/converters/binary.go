package converters

import (
	"os"
	"path/filepath"

	"github.com/spaghettifunk/anima-builder/engine/assets"
	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

const BinaryVersion = 1

// BinaryConverter stores word aligned blobs, typically precompiled SPIR-V.
type BinaryConverter struct{}

func (bc *BinaryConverter) Suffixes() []string { return []string{"spv", "bin"} }

func (bc *BinaryConverter) ContentType() string { return resources.ResourceTypeBinary.String() }

func (bc *BinaryConverter) CreateSettings() *assets.Settings {
	return assets.NewSettings(resources.ResourceTypeBinary.String(), BinaryVersion)
}

func (bc *BinaryConverter) ConvertFile(s *assets.Settings) assets.ReturnCode {
	buf, err := os.ReadFile(s.Source())
	if err != nil {
		return assets.InternalError
	}
	words, ok := bytesToWords(buf)
	if !ok {
		core.LogError("%s: size %d is not a multiple of 4", s.Source(), len(buf))
		return assets.Unsupported
	}
	return s.SaveBinary(resources.ResourceTypeBinary, BinaryVersion, resources.BinaryData{
		Name:  filepath.Base(s.Source()),
		Words: words,
	}, s.AbsoluteDestination())
}

// bytesToWords reads b as little-endian 32 bit words.
func bytesToWords(b []byte) ([]uint32, bool) {
	if len(b)%4 != 0 {
		return nil, false
	}
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	return byteCode, true
}
