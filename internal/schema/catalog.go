package schema

import (
	"context"
	"encoding/json"
	"errors"
)

// FrameworkSpecification is what the specification service publishes for one
// framework: the schema template whose leaves mark data points, and the
// optional document path under which referenced reports live.
type FrameworkSpecification struct {
	FrameworkID          string          `json:"frameworkId" yaml:"frameworkId"`
	Schema               json.RawMessage `json:"schema" yaml:"-"`
	ReferencedReportPath string          `json:"referencedReportJsonPath,omitempty" yaml:"referencedReportJsonPath"`
}

// ErrSchemaNotFound is returned when no framework specification is
// registered under the requested id.
var ErrSchemaNotFound = errors.New("framework schema not found")

// Catalog provides framework specifications. Specifications are immutable
// for the lifetime of a framework version, so implementations are expected
// to cache aggressively.
type Catalog interface {
	FrameworkSpecification(ctx context.Context, frameworkID string) (*FrameworkSpecification, error)
	ListFrameworks(ctx context.Context) ([]string, error)
	IsFramework(ctx context.Context, id string) bool
	IsDataPointType(ctx context.Context, id string) bool
}
