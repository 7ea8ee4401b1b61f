package ftm

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// TypeEntity marks properties whose values are ids of other records.
const TypeEntity = "entity"

var ErrUnknownSchema = errors.New("unknown schema")

//go:embed schema.yaml
var defaultSchemaYAML []byte

// Property describes one schema property.
type Property struct {
	Name  string `yaml:"-"`
	Type  string `yaml:"type"`
	Range string `yaml:"range,omitempty"`
}

// IsReference reports whether values of the property are record ids.
func (p *Property) IsReference() bool {
	return p != nil && p.Type == TypeEntity
}

// Schema is a resolved schema: its property set includes every property
// inherited through extends.
type Schema struct {
	Name       string
	Abstract   bool
	Extends    []string
	Properties map[string]*Property
	parents    map[string]struct{}
}

// Property returns the descriptor of a declared or inherited property.
func (s *Schema) Property(name string) (*Property, bool) {
	p, ok := s.Properties[name]
	return p, ok
}

// IsA reports whether s is the named schema or inherits from it.
func (s *Schema) IsA(name string) bool {
	if s.Name == name {
		return true
	}
	_, ok := s.parents[name]
	return ok
}

// Registry answers property lookups for a fixed set of schemata. It is
// read-only after loading and safe for concurrent use.
type Registry struct {
	schemata map[string]*Schema
}

type schemaDef struct {
	Abstract   bool                 `yaml:"abstract"`
	Extends    []string             `yaml:"extends"`
	Properties map[string]*Property `yaml:"properties"`
}

type registryFile struct {
	Schemata map[string]schemaDef `yaml:"schemata"`
}

// LoadRegistry reads a YAML schema definition and resolves inheritance.
func LoadRegistry(r io.Reader) (*Registry, error) {
	var file registryFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse schema definition: %w", err)
	}
	if len(file.Schemata) == 0 {
		return nil, errors.New("schema definition declares no schemata")
	}

	reg := &Registry{schemata: make(map[string]*Schema, len(file.Schemata))}
	for name := range file.Schemata {
		if _, err := reg.resolve(name, file.Schemata, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) resolve(name string, defs map[string]schemaDef, visiting map[string]bool) (*Schema, error) {
	if s, ok := r.schemata[name]; ok {
		return s, nil
	}
	def, ok := defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	if visiting[name] {
		return nil, fmt.Errorf("schema inheritance cycle at %s", name)
	}
	visiting[name] = true

	s := &Schema{
		Name:       name,
		Abstract:   def.Abstract,
		Extends:    def.Extends,
		Properties: make(map[string]*Property),
		parents:    make(map[string]struct{}),
	}
	for _, parentName := range def.Extends {
		parent, err := r.resolve(parentName, defs, visiting)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		s.parents[parentName] = struct{}{}
		for p := range parent.parents {
			s.parents[p] = struct{}{}
		}
		for pname, prop := range parent.Properties {
			s.Properties[pname] = prop
		}
	}
	for pname, prop := range def.Properties {
		if prop == nil {
			prop = &Property{Type: "string"}
		}
		prop.Name = pname
		if prop.Type == "" {
			prop.Type = "string"
		}
		s.Properties[pname] = prop
	}

	visiting[name] = false
	r.schemata[name] = s
	return s, nil
}

// Get returns a schema by name.
func (r *Registry) Get(name string) (*Schema, bool) {
	s, ok := r.schemata[name]
	return s, ok
}

// Property looks up a property on a schema; absent when either is unknown.
func (r *Registry) Property(schema, name string) (*Property, bool) {
	s, ok := r.schemata[schema]
	if !ok {
		return nil, false
	}
	return s.Property(name)
}

// Names lists the known schemata in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemata))
	for name := range r.schemata {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return LoadRegistry(bytes.NewReader(defaultSchemaYAML))
})

// DefaultRegistry returns the registry built from the embedded schema
// definition. It panics if the embedded file is invalid.
func DefaultRegistry() *Registry {
	reg, err := defaultRegistry()
	if err != nil {
		panic(fmt.Sprintf("ftm: embedded schema definition: %v", err))
	}
	return reg
}
