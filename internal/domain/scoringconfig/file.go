package scoringconfig

import (
	"context"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileSource reads a single configuration version from a YAML file. The file
// is always considered the active row.
type FileSource struct {
	path string
}

// NewFileSource creates a source backed by the YAML file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// FetchActive loads the file. A missing file reads as no active row.
func (f *FileSource) FetchActive(_ context.Context) (*Row, error) {
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return nil, nil
	}
	k := koanf.New("::")
	if err := k.Load(file.Provider(f.path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", f.path, err)
	}
	doc := k.Raw()
	version, _ := positiveInt(doc["model_version"])
	return &Row{ModelVersion: version, Payload: doc, Active: true}, nil
}

// SourceName labels configs loaded from the file.
func (f *FileSource) SourceName() string { return SourceFile }
