package builder

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spaghettifunk/anima-builder/engine/platform"
	"github.com/spaghettifunk/anima-builder/engine/process"
	"github.com/spaghettifunk/anima-builder/engine/project"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// ComponentsFile is the generated registration file inside the game package.
const ComponentsFile = "zz_components.go"

func templatesFS() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// prepareModule writes the parts shared by every Go based target.
func prepareModule(b *BaseBuilder, ctx *BuildContext) error {
	if err := b.CopyTemplate("go.mod.tmpl", filepath.Join(ctx.Root(), "go.mod")); err != nil {
		return err
	}
	return b.UpdateTemplate("components.go.tmpl", filepath.Join(ctx.GameDir(), ComponentsFile))
}

func buildFlags(ps *project.ProjectSettings) ([]string, error) {
	var flags []string
	if ps.IsDebug() {
		flags = append(flags, "-gcflags=all=-N -l")
	} else {
		flags = append(flags, "-trimpath", "-ldflags=-s -w")
	}
	extra, err := ps.Toolchain.Args()
	if err != nil {
		return nil, err
	}
	return append(flags, extra...), nil
}

func goEnvironment(goos, goarch string) *process.Environment {
	env := process.SystemEnvironment()
	if goos != "" {
		env.Insert("GOOS", goos)
	}
	if goarch != "" {
		env.Insert("GOARCH", goarch)
	}
	env.Insert("GOFLAGS", "-mod=mod")
	return env
}

// GoToolchain builds desktop targets with the go command: a plugin loaded
// by the editor, or a standalone executable for deployments.
type GoToolchain struct{}

func (GoToolchain) Name() string { return "GoBuilder" }

func (GoToolchain) Suffixes() []string { return []string{"go"} }

func (GoToolchain) Platforms() []string { return []string{platform.Desktop} }

func (GoToolchain) Templates() fs.FS { return templatesFS() }

func (GoToolchain) PackagingMode() PackagingMode { return PackagingAfter }

func (GoToolchain) Prepare(b *BaseBuilder, ctx *BuildContext) error {
	if err := prepareModule(b, ctx); err != nil {
		return err
	}
	main, plugin := filepath.Join(ctx.Root(), "main.go"), filepath.Join(ctx.Root(), "plugin.go")
	if ctx.Editor {
		if err := removeIfExists(main); err != nil {
			return err
		}
		return b.CopyTemplate("plugin.go.tmpl", plugin)
	}
	if err := removeIfExists(plugin); err != nil {
		return err
	}
	return b.CopyTemplate("main.go.tmpl", main)
}

func (GoToolchain) Artifact(ctx *BuildContext) string {
	name := ctx.ModuleName()
	if ctx.Editor {
		return filepath.Join(ctx.OutputDir(), name+".so")
	}
	return filepath.Join(ctx.OutputDir(), name+ctx.Platform.ExecutableSuffix())
}

func (t GoToolchain) Command(ctx *BuildContext) (Invocation, error) {
	flags, err := buildFlags(ctx.Project)
	if err != nil {
		return Invocation{}, err
	}
	args := []string{"build"}
	if ctx.Editor {
		args = append(args, "-buildmode=plugin")
	}
	args = append(args, "-o", t.Artifact(ctx))
	args = append(args, flags...)
	args = append(args, ".")

	env := goEnvironment(ctx.Platform.GOOS, ctx.Platform.DefaultArchitecture())
	if ctx.Editor {
		env.Insert("CGO_ENABLED", "1")
	}
	return Invocation{
		Program: ctx.Project.Toolchain.Go(),
		Args:    args,
		Dir:     ctx.Root(),
		Env:     env,
	}, nil
}

// WasmToolchain builds the web target. Assets are packaged before the
// build and embedded into the module.
type WasmToolchain struct{}

func (WasmToolchain) Name() string { return "WasmBuilder" }

func (WasmToolchain) Suffixes() []string { return []string{"go"} }

func (WasmToolchain) Platforms() []string { return []string{platform.Web} }

func (WasmToolchain) Templates() fs.FS { return templatesFS() }

func (WasmToolchain) PackagingMode() PackagingMode { return PackagingBefore }

func (WasmToolchain) Prepare(b *BaseBuilder, ctx *BuildContext) error {
	if err := prepareModule(b, ctx); err != nil {
		return err
	}
	if err := removeIfExists(filepath.Join(ctx.Root(), "plugin.go")); err != nil {
		return err
	}
	return b.CopyTemplate("wasm_main.go.tmpl", filepath.Join(ctx.Root(), "main.go"))
}

func (WasmToolchain) Artifact(ctx *BuildContext) string {
	return filepath.Join(ctx.OutputDir(), ctx.ModuleName()+ctx.Platform.ExecutableSuffix())
}

func (t WasmToolchain) Command(ctx *BuildContext) (Invocation, error) {
	flags, err := buildFlags(ctx.Project)
	if err != nil {
		return Invocation{}, err
	}
	args := append([]string{"build", "-o", t.Artifact(ctx)}, flags...)
	args = append(args, ".")
	return Invocation{
		Program: ctx.Project.Toolchain.Go(),
		Args:    args,
		Dir:     ctx.Root(),
		Env:     goEnvironment("js", "wasm"),
	}, nil
}

// ToolchainFor returns the toolchain serving the named platform.
func ToolchainFor(name string) (Toolchain, bool) {
	p, ok := platform.Lookup(name)
	if !ok {
		return nil, false
	}
	for _, t := range []Toolchain{GoToolchain{}, WasmToolchain{}} {
		for _, tp := range t.Platforms() {
			if tp == p.Name {
				return t, true
			}
		}
	}
	return nil, false
}
