package specwalk

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedDocument is returned when an uploaded document or a framework
// template cannot be parsed as a JSON object.
var ErrMalformedDocument = errors.New("malformed document")

// Leaf is one data point cut out of an uploaded document: the data point
// type declared by the schema, the position the value was found at, and the
// raw value itself. A leaf for which the document held nothing carries an
// explicit JSON null, never an absent entry.
type Leaf struct {
	Type    string
	Path    Path
	Content json.RawMessage
}

// LeafID returns the data point type a schema node declares, and whether the
// node is a leaf at all. A leaf is an object carrying an "id" string and a
// "ref" marker; everything else is an intermediate node.
func LeafID(node any) (string, bool) {
	obj, ok := node.(map[string]any)
	if !ok {
		return "", false
	}
	if _, hasRef := obj["ref"]; !hasRef {
		return "", false
	}
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Split walks the framework template and the uploaded document in lock-step
// and returns one Leaf per schema leaf, keyed by data point type. The
// document may cover any subset of the template; uncovered leaves come back
// with null content. Document subtrees the template does not know are
// ignored.
func Split(template, document json.RawMessage) (map[string]Leaf, error) {
	templateRoot, err := parseObject(template)
	if err != nil {
		return nil, fmt.Errorf("%w: framework template: %v", ErrMalformedDocument, err)
	}
	documentRoot, err := parseObject(document)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	leaves := map[string]Leaf{}
	if err := splitNode(templateRoot, documentRoot, nil, leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func splitNode(templateNode, documentNode any, at Path, out map[string]Leaf) error {
	if id, ok := LeafID(templateNode); ok {
		content, err := json.Marshal(documentNode)
		if err != nil {
			return fmt.Errorf("encode leaf %s: %w", at, err)
		}
		out[id] = Leaf{Type: id, Path: at, Content: content}
		return nil
	}

	templateObj, ok := templateNode.(map[string]any)
	if !ok {
		// Template scalar outside a leaf marker; nothing to extract.
		return nil
	}
	documentObj, _ := documentNode.(map[string]any)
	for key, child := range templateObj {
		var documentChild any
		if documentObj != nil {
			documentChild = documentObj[key]
		}
		if err := splitNode(child, documentChild, at.Child(key), out); err != nil {
			return err
		}
	}
	return nil
}

// IsEmptyContent reports whether a leaf value holds no actual data: null,
// empty containers, or containers whose every nested value is itself empty.
// Such leaves are not persisted; absent evidence is not stored as a fact.
func IsEmptyContent(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return false
	}
	return isEmptyValue(value)
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case map[string]any:
		for _, nested := range v {
			if !isEmptyValue(nested) {
				return false
			}
		}
		return true
	case []any:
		for _, nested := range v {
			if !isEmptyValue(nested) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func parseObject(raw json.RawMessage) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("not a JSON object")
	}
	return obj, nil
}
