package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verdantis/esgdata-backend/internal/specwalk"
)

// localFrameworkFile is the on-disk descriptor for one framework in local
// catalog mode: a small YAML header next to the schema template it points at.
type localFrameworkFile struct {
	FrameworkID          string `yaml:"frameworkId"`
	ReferencedReportPath string `yaml:"referencedReportJsonPath"`
	SchemaFile           string `yaml:"schemaFile"`
}

// LocalCatalog serves framework specifications from a fixtures directory,
// used for development and tests when no specification service is running.
// Layout: one <name>.yaml descriptor per framework referencing its schema
// JSON file.
type LocalCatalog struct {
	specifications map[string]*FrameworkSpecification
	dataPointTypes map[string]bool
}

func NewLocalCatalog(dir string) (*LocalCatalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema fixtures dir: %w", err)
	}

	catalog := &LocalCatalog{
		specifications: map[string]*FrameworkSpecification{},
		dataPointTypes: map[string]bool{},
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read framework descriptor %s: %w", entry.Name(), err)
		}
		var descriptor localFrameworkFile
		if err := yaml.Unmarshal(raw, &descriptor); err != nil {
			return nil, fmt.Errorf("parse framework descriptor %s: %w", entry.Name(), err)
		}
		if descriptor.FrameworkID == "" || descriptor.SchemaFile == "" {
			return nil, fmt.Errorf("framework descriptor %s is missing frameworkId or schemaFile", entry.Name())
		}
		schemaRaw, err := os.ReadFile(filepath.Join(dir, descriptor.SchemaFile))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", descriptor.SchemaFile, err)
		}
		if !json.Valid(schemaRaw) {
			return nil, fmt.Errorf("schema %s is not valid JSON", descriptor.SchemaFile)
		}
		catalog.specifications[descriptor.FrameworkID] = &FrameworkSpecification{
			FrameworkID:          descriptor.FrameworkID,
			Schema:               schemaRaw,
			ReferencedReportPath: descriptor.ReferencedReportPath,
		}
		if err := catalog.indexDataPointTypes(schemaRaw); err != nil {
			return nil, fmt.Errorf("index data point types of %s: %w", descriptor.FrameworkID, err)
		}
	}
	return catalog, nil
}

func (c *LocalCatalog) indexDataPointTypes(schemaRaw json.RawMessage) error {
	var root map[string]any
	if err := json.Unmarshal(schemaRaw, &root); err != nil {
		return err
	}
	var walk func(node any)
	walk = func(node any) {
		if id, ok := specwalk.LeafID(node); ok {
			c.dataPointTypes[id] = true
			return
		}
		obj, ok := node.(map[string]any)
		if !ok {
			return
		}
		for _, child := range obj {
			walk(child)
		}
	}
	walk(root)
	return nil
}

func (c *LocalCatalog) FrameworkSpecification(ctx context.Context, frameworkID string) (*FrameworkSpecification, error) {
	spec, ok := c.specifications[frameworkID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, frameworkID)
	}
	return spec, nil
}

func (c *LocalCatalog) ListFrameworks(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(c.specifications))
	for id := range c.specifications {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *LocalCatalog) IsFramework(ctx context.Context, id string) bool {
	_, ok := c.specifications[id]
	return ok
}

func (c *LocalCatalog) IsDataPointType(ctx context.Context, id string) bool {
	return c.dataPointTypes[id]
}
