// Package declarative loads, validates and writes project configuration
// files: workflows, data collections and join definitions in YAML.
package declarative

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dclake/internal/domain"
)

// LoadOptions configures YAML loading behavior.
type LoadOptions struct {
	AllowUnknownFields bool
}

// LoadProject reads a project file and binds collections to their workflows.
// The result is not validated; call ValidateProject for that.
func LoadProject(path string, opts LoadOptions) (*domain.Project, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified config files
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound("project file %s does not exist", path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	p, err := ParseProject(data, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// ParseProject decodes project YAML.
func ParseProject(data []byte, opts LoadOptions) (*domain.Project, error) {
	var p domain.Project
	if opts.AllowUnknownFields {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, err
		}
	} else {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&p); err != nil {
			return nil, err
		}
	}
	p.Bind()
	return &p, nil
}
