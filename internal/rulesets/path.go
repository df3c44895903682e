package rulesets

import "strings"

// ReadPath traverses a dot-path against the ruleset's field tree. Missing
// intermediates or leaves return (nil, false); it never errors, per
// spec.md's ReadPath operation.
func (r *Ruleset) ReadPath(path string) (interface{}, bool) {
	return readPath(r.Fields, strings.Split(path, "."))
}

func readPath(node interface{}, segments []string) (interface{}, bool) {
	if len(segments) == 0 {
		return node, true
	}

	m, ok := node.(map[string]interface{})
	if !ok {
		return nil, false
	}

	next, ok := m[segments[0]]
	if !ok {
		return nil, false
	}

	return readPath(next, segments[1:])
}

// writePath writes value at the dot-path, creating intermediate map nodes
// as needed (spec.md §9: "Dot-path patching requires missing intermediates
// to be created"). Returns the previous value at the leaf, if any.
func writePath(root map[string]interface{}, path string, value interface{}) interface{} {
	segments := strings.Split(path, ".")
	node := root

	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg]
		if !ok {
			newChild := map[string]interface{}{}
			node[seg] = newChild
			node = newChild
			continue
		}

		childMap, ok := child.(map[string]interface{})
		if !ok {
			// A non-map value occupies this intermediate; replace it with
			// a map so the patch can still land. This only happens when a
			// proposal targets a path that used to be a leaf.
			childMap = map[string]interface{}{}
			node[seg] = childMap
		}
		node = childMap
	}

	leaf := segments[len(segments)-1]
	old := node[leaf]
	node[leaf] = value
	return old
}
