package mapping

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk mapping list.
type Document struct {
	Mappings []ParameterMapping `yaml:"mappings"`
}

// Decode reads a YAML mapping document and validates every entry.
func Decode(r io.Reader) ([]ParameterMapping, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode mappings: %w", err)
	}
	for i := range doc.Mappings {
		if err := doc.Mappings[i].Validate(); err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i, err)
		}
	}
	return doc.Mappings, nil
}

// curveUnset marks a mapping decoded without a curve.
const curveUnset Curve = 0xff

var mappingFields = map[string]bool{
	"id": true, "channel": true, "source": true, "target": true, "kind": true, "curve": true,
	"min": true, "max": true, "invert": true, "bidirectional": true, "label": true,
}

// UnmarshalYAML implements yaml.Unmarshaler. An omitted curve defaults by
// kind and an omitted range is [0, 1].
func (m *ParameterMapping) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i]
			if !mappingFields[key.Value] {
				return fmt.Errorf("line %d: field %s not found in mapping", key.Line, key.Value)
			}
		}
	}

	type plain ParameterMapping
	p := plain{Curve: curveUnset}
	if err := value.Decode(&p); err != nil {
		return err
	}
	if p.Curve == curveUnset {
		p.Curve = DefaultCurve(p.Kind)
	}
	if p.Min == 0 && p.Max == 0 {
		p.Max = 1
	}
	*m = ParameterMapping(p)
	return nil
}

// Encode writes mappings as a YAML document.
func Encode(w io.Writer, mappings []ParameterMapping) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Document{Mappings: mappings}); err != nil {
		return fmt.Errorf("encode mappings: %w", err)
	}
	return enc.Close()
}

// LoadFile reads a mapping file.
func LoadFile(path string) ([]ParameterMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(data))
}

// SaveFile writes a mapping file, replacing it atomically.
func SaveFile(path string, mappings []ParameterMapping) error {
	var buf bytes.Buffer
	if err := Encode(&buf, mappings); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
