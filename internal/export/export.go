// Package export writes port tables and raw reports into the output
// directory and lists what is there.
package export

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/results"
)

const (
	csvPrefix = "ports_export_"
	xmlPrefix = "nmap_export_"

	filePerm = 0o600
)

// listed file name prefixes: saved scans and exports
var listedPrefixes = []string{"nmap_", "ports_"}

var csvHeader = []string{"protocol", "port", "state", "service", "version"}

// Written describes a file an export produced.
type Written struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// File is an entry of the output directory listing.
type File struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// Exporter writes into one directory.
type Exporter struct {
	dir string
	now func() time.Time
}

// NewExporter returns an exporter for dir. The directory is expected to
// exist; the server creates it at startup.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

// Dir returns the output directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// PortsCSV writes ports as CSV and returns the file and its content.
func (e *Exporter) PortsCSV(ports []results.Port) (*Written, string, error) {
	if len(ports) == 0 {
		return nil, "", errors.NewScanError(errors.CodeValidation, "No ports to export")
	}

	lines := make([]string, 0, len(ports)+1)
	lines = append(lines, csvLine(csvHeader))
	for _, p := range ports {
		lines = append(lines, csvLine([]string{p.Protocol, p.Port, p.State, p.Service, p.Version}))
	}
	content := strings.Join(lines, "\n")

	written, err := e.write(csvPrefix, ".csv", []byte(content))
	if err != nil {
		return nil, "", err
	}
	return written, content, nil
}

// XML writes a raw report verbatim.
func (e *Exporter) XML(raw []byte) (*Written, error) {
	if len(raw) == 0 {
		return nil, errors.NewScanError(errors.CodeValidation, "No XML to export")
	}
	return e.write(xmlPrefix, ".xml", raw)
}

// List returns the saved scans and exports in the directory. A missing
// directory is an empty listing.
func (e *Exporter) List() ([]File, error) {
	entries, err := os.ReadDir(e.dir)
	if stderrors.Is(err, fs.ErrNotExist) {
		return []File{}, nil
	}
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeStorage, "failed to read output directory", err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !hasListedPrefix(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, File{
			Name:    entry.Name(),
			Path:    filepath.Join(e.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}

// ReadReport returns the content of a saved report.
func ReadReport(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.WrapScanError(errors.CodeFileNotFound, "saved report not found", err)
	}
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeStorage, "failed to read saved report", err)
	}
	return data, nil
}

// Contains reports whether path names a file inside the output directory.
// Only such files are served back to API clients.
func (e *Exporter) Contains(path string) bool {
	if path == "" {
		return false
	}
	dir, err := filepath.Abs(e.dir)
	if err != nil {
		return false
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (e *Exporter) write(prefix, ext string, data []byte) (*Written, error) {
	name := fmt.Sprintf("%s%d%s", prefix, e.now().UnixMilli(), ext)
	path := filepath.Join(e.dir, name)

	if err := os.WriteFile(path, data, filePerm); err != nil {
		return nil, errors.WrapScanError(errors.CodeFileWrite, "failed to write export", err)
	}
	return &Written{Filename: name, Path: path}, nil
}

// csvLine quotes every cell, doubling embedded quotes.
func csvLine(cells []string) string {
	quoted := make([]string, len(cells))
	for i, c := range cells {
		quoted[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",")
}

func hasListedPrefix(name string) bool {
	for _, p := range listedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
