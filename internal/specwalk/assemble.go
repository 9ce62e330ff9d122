package specwalk

import (
	"encoding/json"
	"fmt"
)

// Assemble rebuilds a document by walking the framework template and
// replacing every leaf with the value lookup returns for its data point
// type. A nil lookup result renders as an explicit null: partial datasets
// are a normal, displayable state, never an error. Stored values whose type
// the template no longer declares are dropped, because the walk is driven by
// the template alone.
func Assemble(template json.RawMessage, lookup func(dataPointType string) json.RawMessage) (json.RawMessage, error) {
	root, err := parseObject(template)
	if err != nil {
		return nil, fmt.Errorf("%w: framework template: %v", ErrMalformedDocument, err)
	}
	assembled := assembleNode(root, lookup)
	out, err := json.Marshal(assembled)
	if err != nil {
		return nil, fmt.Errorf("encode assembled document: %w", err)
	}
	return out, nil
}

func assembleNode(node any, lookup func(string) json.RawMessage) any {
	if id, ok := LeafID(node); ok {
		raw := lookup(id)
		if len(raw) == 0 {
			return nil
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil
		}
		return value
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return node
	}
	out := make(map[string]any, len(obj))
	for key, child := range obj {
		out[key] = assembleNode(child, lookup)
	}
	return out
}
