package project

import (
	"strings"

	"github.com/flytam/filenamify"
)

// Token is one template placeholder provided by the project settings.
type Token struct {
	Name  string
	Value func(ps *ProjectSettings) string
}

// Placeholder is the spelling used in templates.
func (t Token) Placeholder() string {
	return "${" + t.Name + "}"
}

var tokens = []Token{
	{"projectName", func(ps *ProjectSettings) string { return ps.Name }},
	{"projectId", func(ps *ProjectSettings) string { return ps.ID }},
	{"projectVersion", func(ps *ProjectSettings) string { return ps.Version }},
	{"companyName", func(ps *ProjectSettings) string { return ps.Company }},
	{"idName", func(ps *ProjectSettings) string { return IdentifierName(ps.Name) }},
	{"sdkPath", func(ps *ProjectSettings) string { return ps.SDK }},
	{"sdkVersion", func(ps *ProjectSettings) string { return ps.SDKVersion }},
	{"firstMap", func(ps *ProjectSettings) string { return ps.FirstMap }},
	{"platform", func(ps *ProjectSettings) string { return ps.currentPlatform }},
	{"config", func(ps *ProjectSettings) string { return ps.Config }},
	{"contentPath", func(ps *ProjectSettings) string { return ps.ContentPath() }},
	{"pluginsPath", func(ps *ProjectSettings) string { return ps.PluginsPath() }},
	{"generatedPath", func(ps *ProjectSettings) string { return ps.GeneratedPath() }},
	{"importPath", func(ps *ProjectSettings) string { return ps.importPath }},
}

func Tokens() []Token {
	return append([]Token(nil), tokens...)
}

// TokenValues resolves every token against ps, keyed by placeholder.
func (ps *ProjectSettings) TokenValues() map[string]string {
	out := make(map[string]string, len(tokens))
	for _, t := range tokens {
		out[t.Placeholder()] = t.Value(ps)
	}
	return out
}

// IdentifierName turns a display name into something usable as a file name
// and Go package identifier.
func IdentifierName(name string) string {
	safe, err := filenamify.FilenamifyV2(name)
	if err != nil {
		safe = name
	}
	var b strings.Builder
	for _, r := range strings.ToLower(safe) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9' && b.Len() > 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteString("p")
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "project"
	}
	return b.String()
}
