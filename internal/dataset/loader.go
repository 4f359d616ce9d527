package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Options controls how a file is turned into a Table.
type Options struct {
	// Delimiter for CSV. If 0, picks '\t' for .tsv and sniffs the header line otherwise.
	Delimiter rune
	Locale    Locale
	// Sheet selects an XLSX sheet by name; SheetIndex (1-based) is used otherwise.
	Sheet      string
	SheetIndex int
	// MaxRows limits rows read; 0 means unlimited.
	MaxRows int
}

// Loader reads one family of file formats.
type Loader interface {
	CanLoad(path string) bool
	Load(path string, opt Options) (*Table, error)
}

var registry []Loader

// Register adds a loader implementation to the registry.
func Register(l Loader) {
	registry = append(registry, l)
}

func init() {
	Register(csvLoader{})
	Register(xlsxLoader{})
	Register(documentLoader{})
}

// Load selects a loader by file extension. Files with an unknown extension are
// sniffed by content: ZIP containers are read as workbooks, other binary
// formats are rejected, and anything else is tried as delimited text.
func Load(path string, opt Options) (*Table, error) {
	for _, l := range registry {
		if l.CanLoad(path) {
			return l.Load(path, opt)
		}
	}
	head, err := readHead(path, 8192)
	if err != nil {
		return nil, err
	}
	kind, _ := filetype.Match(head)
	switch {
	case kind.Extension == "xlsx" || filetype.IsArchive(head):
		return xlsxLoader{}.Load(path, opt)
	case kind != filetype.Unknown:
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedFormat, filepath.Base(path), kind.MIME.Value)
	}
	return csvLoader{}.Load(path, opt)
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	buf := make([]byte, n)
	m, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return buf[:m], nil
}

func baseName(path string) string {
	b := filepath.Base(path)
	return strings.TrimSuffix(b, filepath.Ext(b))
}
