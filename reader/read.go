package reader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/comalice/harel"
)

// ErrUnsupportedFormat is returned by ReadFile for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported chart format")

func malformed(name string, err error) error {
	return &harel.Error{Kind: harel.KindMalformedChart, Chart: name, Err: err}
}

// ReadYAML decodes a YAML chart document. Unknown fields are rejected.
func ReadYAML(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Document
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty document")
		}
		return nil, malformed("", fmt.Errorf("decode yaml: %w", err))
	}
	return &d, nil
}

// ReadJSON decodes a JSON chart document. Unknown fields are rejected.
func ReadJSON(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var d Document
	if err := dec.Decode(&d); err != nil {
		return nil, malformed("", fmt.Errorf("decode json: %w", err))
	}
	return &d, nil
}

// ReadFile decodes the document at path. The format follows the extension:
// .yaml or .yml, .json, .scxml or .xml.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var read func(io.Reader) (*Document, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		read = ReadYAML
	case ".json":
		read = ReadJSON
	case ".scxml", ".xml":
		read = ReadSCXML
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	d, err := read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Load reads and compiles the document at path.
func Load(path string, reg *Registry) (*harel.Chart, *Document, error) {
	d, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	c, err := Compile(d, reg)
	if err != nil {
		return nil, d, fmt.Errorf("%s: %w", path, err)
	}
	return c, d, nil
}
