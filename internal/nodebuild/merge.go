package nodebuild

import (
	"encoding/json"
	"reflect"
)

// normalizeMeta round-trips m through JSON so values compare equal to what
// the store hands back. Nil values survive so they can delete keys on merge.
func normalizeMeta(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// mergeMeta applies patch onto base. Non-empty values overwrite, explicit
// nulls delete, and empty collections are ignored. Nested maps merge
// recursively. Neither argument is modified.
func mergeMeta(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		if v == nil || isEmptyCollection(v) {
			continue
		}
		out[k] = v
	}
	for k, v := range patch {
		switch {
		case v == nil:
			delete(out, k)
		case isEmptyCollection(v):
		default:
			existing, baseIsMap := out[k].(map[string]any)
			incoming, patchIsMap := v.(map[string]any)
			if baseIsMap && patchIsMap {
				merged := mergeMeta(existing, incoming)
				if len(merged) == 0 {
					delete(out, k)
					continue
				}
				out[k] = merged
				continue
			}
			out[k] = v
		}
	}
	return out
}

func isEmptyCollection(v any) bool {
	switch c := v.(type) {
	case []any:
		return len(c) == 0
	case map[string]any:
		return len(c) == 0
	}
	return false
}

func metaEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
