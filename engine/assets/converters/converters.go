// Package converters holds the built-in asset converters.
package converters

import "github.com/spaghettifunk/anima-builder/engine/assets"

// Defaults returns a fresh instance of every built-in converter in
// registration order.
func Defaults() []assets.Converter {
	return []assets.Converter{
		&TextConverter{},
		&BinaryConverter{},
		&TextureConverter{},
		&MaterialConverter{},
		NewShaderConverter(),
		&ModelConverter{},
		&BitmapFontConverter{},
		&SystemFontConverter{},
		&PrefabConverter{},
	}
}
