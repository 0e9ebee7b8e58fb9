// Package packager writes the converted resources of a project into the
// base.pak archive read by the runtime, and reads it back.
package packager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/spaghettifunk/anima-builder/engine/core"
	"github.com/spaghettifunk/anima-builder/engine/resources"
)

// PackageName is the archive the runtime looks up next to its executable.
const PackageName = "base.pak"

// archive entries carry a fixed time so identical inputs give identical bytes
var entryTime = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// ImportDirFunc returns the directory holding the resources to package. It
// is asked on every run since the directory follows the current platform.
type ImportDirFunc func() string

type Packager struct {
	importDir ImportDirFunc
	index     *resources.Index
	// Compress deflates entries instead of storing them.
	Compress bool

	logger *core.Logger
}

// New creates a packager. index is only used to name entries in the log and
// may be nil.
func New(importDir ImportDirFunc, index *resources.Index) *Packager {
	return &Packager{
		importDir: importDir,
		index:     index,
		logger:    core.NewLogger("Packager"),
	}
}

// Package writes base.pak into dir.
func (p *Packager) Package(dir string) (string, error) {
	return p.PackageAs(dir, PackageName)
}

// PackageAs writes every resource of the import directory into dir/name,
// one entry per resource named by its identifier. The archive is written
// to a temporary file first and only replaces dir/name once complete.
func (p *Packager) PackageAs(dir, name string) (string, error) {
	src := p.importDir()
	entries, err := p.collect(src)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrPackageOpen, err)
	}

	target := filepath.Join(dir, name)
	p.logger.Infof("packaging %d resources to %s", len(entries), target)

	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrPackageOpen, err)
	}
	if err := p.write(tmp, src, entries); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", core.ErrPackageOpen, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", core.ErrPackageOpen, err)
	}
	p.logger.Info("packaging done")
	return target, nil
}

// collect lists the resource files of dir in a stable order. Anything not
// named like a resource identifier is left out.
func (p *Packager) collect(dir string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPackageRead, err)
	}
	var out []string
	for _, it := range items {
		if it.IsDir() {
			continue
		}
		if !core.IsResourceID(it.Name()) {
			p.logger.Debugf("skipping %s", it.Name())
			continue
		}
		out = append(out, it.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (p *Packager) write(w io.Writer, src string, entries []string) error {
	zw := zip.NewWriter(w)
	method := zip.Store
	if p.Compress {
		method = zip.Deflate
		zw.RegisterCompressor(zip.Deflate, pooledDeflate)
	}

	for _, uuid := range entries {
		if p.index != nil {
			if origin := p.index.UUIDToPath(uuid); origin != "" {
				p.logger.Debugf("\tcopying %s", origin)
			}
		}
		if err := p.writeEntry(zw, filepath.Join(src, uuid), uuid, method); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrPackageOpen, err)
	}
	return nil
}

func (p *Packager) writeEntry(zw *zip.Writer, path, name string, method uint16) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrPackageRead, err)
	}
	defer in.Close()

	hdr := &zip.FileHeader{Name: name, Method: method, Modified: entryTime}
	out, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrPackageOpen, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrPackageRead, name, err)
	}
	return nil
}

var deflaters sync.Pool

type pooledWriter struct {
	*flate.Writer
}

func (w pooledWriter) Close() error {
	err := w.Writer.Close()
	deflaters.Put(w.Writer)
	return err
}

func pooledDeflate(dst io.Writer) (io.WriteCloser, error) {
	if fw, ok := deflaters.Get().(*flate.Writer); ok {
		fw.Reset(dst)
		return pooledWriter{fw}, nil
	}
	fw, err := flate.NewWriter(dst, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	return pooledWriter{fw}, nil
}

// Archive is a package opened for reading.
type Archive struct {
	rc      *zip.ReadCloser
	entries map[string]*zip.File
}

func OpenArchive(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPackageOpen, err)
	}
	a := &Archive{rc: rc, entries: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		a.entries[f.Name] = f
	}
	return a, nil
}

// UUIDs lists the resources of the archive in order.
func (a *Archive) UUIDs() []string {
	out := make([]string, 0, len(a.entries))
	for k := range a.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var ErrNotInArchive = errors.New("resource not in archive")

// Read returns the bytes of the resource uuid.
func (a *Archive) Read(uuid string) ([]byte, error) {
	f, ok := a.entries[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInArchive, uuid)
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (a *Archive) Close() error {
	return a.rc.Close()
}
