package repair

import (
	"fmt"
	"strconv"
	"strings"
)

// Patch operations.
const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// Op is one JSON-patch style operation on a skill document.
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Patch groups operations with the reason they were proposed.
type Patch struct {
	Kind   string `json:"kind"`
	Ops    []Op   `json:"ops"`
	Reason string `json:"reason,omitempty"`
}

// PatchError reports an operation that could not be applied.
type PatchError struct {
	Op     Op
	Reason string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch %s %s: %s", e.Op.Op, e.Op.Path, e.Reason)
}

// splitPath splits a JSON pointer, unescaping ~1 and ~0.
func splitPath(path string) ([]string, bool) {
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}
	parts := strings.Split(path[1:], "/")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(strings.ReplaceAll(p, "~1", "/"), "~0", "~")
	}
	return parts, true
}

// ApplyPatch applies ops in order to doc. Intermediate containers missing
// on the path are created: an array when the next token is an index or
// "-", an object otherwise. "-" appends to an array.
func ApplyPatch(doc map[string]any, ops []Op) (map[string]any, error) {
	for _, op := range ops {
		switch op.Op {
		case OpAdd, OpReplace, OpRemove:
		default:
			return nil, &PatchError{Op: op, Reason: "unsupported op"}
		}
		parts, ok := splitPath(op.Path)
		if !ok {
			return nil, &PatchError{Op: op, Reason: "invalid path"}
		}
		if len(parts) == 0 || (len(parts) == 1 && parts[0] == "") {
			return nil, &PatchError{Op: op, Reason: "cannot patch the document root"}
		}
		if _, err := apply(doc, parts, op); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func isIndexToken(tok string) bool {
	if tok == "-" {
		return true
	}
	_, err := strconv.Atoi(tok)
	return err == nil
}

func apply(node any, parts []string, op Op) (any, error) {
	key, last := parts[0], len(parts) == 1

	switch n := node.(type) {
	case map[string]any:
		if last {
			if op.Op == OpRemove {
				delete(n, key)
			} else {
				n[key] = op.Value
			}
			return n, nil
		}
		child, ok := n[key]
		switch child.(type) {
		case map[string]any, []any:
		default:
			ok = false
		}
		if !ok {
			if isIndexToken(parts[1]) {
				child = []any{}
			} else {
				child = map[string]any{}
			}
		}
		updated, err := apply(child, parts[1:], op)
		if err != nil {
			return nil, err
		}
		n[key] = updated
		return n, nil

	case []any:
		if last && op.Op == OpAdd && key == "-" {
			return append(n, op.Value), nil
		}
		i, err := strconv.Atoi(key)
		if err != nil {
			return nil, &PatchError{Op: op, Reason: fmt.Sprintf("expected array index, got %q", key)}
		}
		limit := len(n)
		if last && op.Op == OpAdd {
			limit++
		}
		if i < 0 || i >= limit {
			return nil, &PatchError{Op: op, Reason: fmt.Sprintf("index out of range: %d", i)}
		}
		if !last {
			updated, err := apply(n[i], parts[1:], op)
			if err != nil {
				return nil, err
			}
			n[i] = updated
			return n, nil
		}
		switch op.Op {
		case OpAdd:
			n = append(n, nil)
			copy(n[i+1:], n[i:])
			n[i] = op.Value
		case OpReplace:
			n[i] = op.Value
		case OpRemove:
			n = append(n[:i], n[i+1:]...)
		}
		return n, nil
	}
	return nil, &PatchError{Op: op, Reason: fmt.Sprintf("cannot traverse %T", node)}
}
