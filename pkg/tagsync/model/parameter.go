// Package model loads the parameter resource naming the statistical model the
// external tagger runs with.
package model

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"golang.org/x/net/html/charset"

	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
)

const (
	// KeyFile is the property holding the model file path.
	KeyFile = "file"
	// KeyEncoding is the property holding the model's character encoding.
	KeyEncoding = "encoding"

	// DefaultEncoding applies when a parameter document omits the encoding key.
	DefaultEncoding = "utf-8"
)

// Parameter identifies the model file and its encoding. A Parameter may be
// shared by several workers and overridden between runs.
type Parameter struct {
	mu       sync.RWMutex
	file     string
	encoding string
	source   string
}

// Load reads a parameter document from path.
func Load(path string) (*Parameter, error) {
	p := &Parameter{}
	if err := p.load(path); err != nil {
		return nil, err
	}
	return p, nil
}

// New builds a parameter from explicit values.
func New(file, encoding string) (*Parameter, error) {
	if strings.TrimSpace(file) == "" {
		return nil, internalerr.Configf("parameter.file", "model file is required")
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Parameter{file: file, encoding: encoding}, nil
}

// Override replaces both values with those read from path. An empty path is a
// no-op. On failure the previous values are kept.
func (p *Parameter) Override(path string) error {
	if path == "" {
		return nil
	}
	slog.Info("Loading tagger parameter", "path", path)
	return p.load(path)
}

// Model returns the model identifier "<file>:<encoding>".
func (p *Parameter) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.file + ":" + p.encoding
}

// File returns the model file path.
func (p *Parameter) File() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.file
}

// Encoding returns the model encoding.
func (p *Parameter) Encoding() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.encoding
}

// Source returns the path of the document the current values came from.
func (p *Parameter) Source() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

func (p *Parameter) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &internalerr.ConfigurationError{Field: "parameter", Err: err}
	}

	var props map[string]string
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		props, err = parseXMLProperties(data)
	} else {
		props, err = parseProperties(data)
	}
	if err != nil {
		return &internalerr.ConfigurationError{Field: "parameter", Err: fmt.Errorf("%s: %w", path, err)}
	}

	file := strings.TrimSpace(props[KeyFile])
	if file == "" {
		return internalerr.Configf("parameter.file", "%s: missing %q property", path, KeyFile)
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(path), file)
	}
	encoding := strings.TrimSpace(props[KeyEncoding])
	if encoding == "" {
		encoding = DefaultEncoding
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.file = file
	p.encoding = encoding
	p.source = path
	return nil
}

func parseProperties(data []byte) (map[string]string, error) {
	v := viper.New()
	v.SetConfigType("properties")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return map[string]string{
		KeyFile:     v.GetString(KeyFile),
		KeyEncoding: v.GetString(KeyEncoding),
	}, nil
}

// xmlProperties is an XML properties document:
// <properties><entry key="file">...</entry></properties>.
type xmlProperties struct {
	XMLName xml.Name `xml:"properties"`
	Entries []struct {
		Key   string `xml:"key,attr"`
		Value string `xml:",chardata"`
	} `xml:"entry"`
}

func parseXMLProperties(data []byte) (map[string]string, error) {
	var doc xmlProperties
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	props := make(map[string]string, len(doc.Entries))
	for _, e := range doc.Entries {
		props[e.Key] = e.Value
	}
	return props, nil
}
