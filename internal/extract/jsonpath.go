package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func decodeJSONValue(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// walkJSONPath descends a decoded JSON value along dotted segments.
// Numeric segments index into arrays; other segments index into objects.
func walkJSONPath(root any, segments []string) (any, error) {
	cur := root
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, nil
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("segment %q is not a valid array index", seg)
			}
			if idx < 0 || idx >= len(node) {
				return nil, nil
			}
			cur = node[idx]
		default:
			return nil, nil
		}
	}
	return cur, nil
}

// setDottedPath writes value at path within root, creating intermediate
// map[string]any nodes as needed. Used to populate a module's JSON block
// from a field rule's target_path.
func setDottedPath(root map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	node := root
	for i, seg := range segments {
		if i == len(segments)-1 {
			node[seg] = value
			return
		}
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[seg] = next
		}
		node = next
	}
}

// getDottedPath reads the value at path within root, reporting whether it
// was present.
func getDottedPath(root map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = root
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
