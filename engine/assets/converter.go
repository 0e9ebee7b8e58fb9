package assets

import "fmt"

type ReturnCode int

const (
	Success ReturnCode = iota
	// The source is not something this converter understands.
	Unsupported
	AbortedByUser
	InternalError
	// Nothing to do; nothing is committed either.
	Skipped
	// The source bytes are the resource. The importer copies them verbatim.
	CopyAsIs
)

func (rc ReturnCode) String() string {
	switch rc {
	case Success:
		return "Success"
	case Unsupported:
		return "Unsupported"
	case AbortedByUser:
		return "AbortedByUser"
	case InternalError:
		return "InternalError"
	case Skipped:
		return "Skipped"
	case CopyAsIs:
		return "CopyAsIs"
	}
	return fmt.Sprintf("ReturnCode(%d)", int(rc))
}

// Converter turns one category of source asset into engine resources. A
// single instance serves every asset with a matching suffix, so
// implementations keep per-asset state in Settings.
type Converter interface {
	// Suffixes are matched case-insensitively, without the leading dot.
	Suffixes() []string
	ContentType() string
	CreateSettings() *Settings
	// ConvertFile writes the resource for s.Source() to s.AbsoluteDestination().
	// It must not leave a partial resource behind on failure.
	ConvertFile(s *Settings) ReturnCode
}

// Initializer is implemented by converters that need one-time setup after
// registration.
type Initializer interface {
	Init() error
}

// Renamer is implemented by converters that rewrite source content when the
// asset is renamed.
type Renamer interface {
	RenameAsset(s *Settings, oldName, newName string)
}

// TemplateProvider is implemented by converters that can create a new
// source asset from a template.
type TemplateProvider interface {
	TemplatePath() string
	CreateFromTemplate(dst string) error
}

// Builder is a converter whose sources are compiled into a module rather
// than converted one by one. Converting one of its sources only marks the
// project outdated.
type Builder interface {
	Converter
	Name() string
	RescanSources(root string)
	Sources() []string
	IsEmpty() bool
	MakeOutdated()
}
