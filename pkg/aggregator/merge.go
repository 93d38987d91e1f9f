package aggregator

import "encoding/json"

// maxMergedArrayLen caps concatenated arrays so one chatty document can't
// blow up the merged summary.
const maxMergedArrayLen = 1000

// mergeValues folds b into a per the structural merge rules: scalars keep
// the first non-empty value seen in fold order, arrays concatenate with
// deep-equality dedupe up to maxMergedArrayLen, and objects merge key by
// key, recursing. A key present in only one side passes through unchanged.
func mergeValues(a, b interface{}) interface{} {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	aMap, aIsMap := a.(map[string]interface{})
	bMap, bIsMap := b.(map[string]interface{})
	if aIsMap && bIsMap {
		return mergeObjects(aMap, bMap)
	}

	aArr, aIsArr := a.([]interface{})
	bArr, bIsArr := b.([]interface{})
	if aIsArr && bIsArr {
		return mergeArrays(aArr, bArr)
	}

	if isEmptyScalar(a) {
		return b
	}
	return a
}

// MergeJSONObjects exposes the object-merge rule for callers outside this
// package that need to fold multiple JSON objects of known shape at a
// finer grain than a full batch aggregate — the worker uses it to combine
// one file's per-chunk extraction results before marking the work item
// SUCCESS.
func MergeJSONObjects(a, b map[string]interface{}) map[string]interface{} {
	return mergeObjects(a, b)
}

func mergeObjects(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; ok {
			out[k] = mergeValues(existing, v)
		} else {
			out[k] = v
		}
	}
	return out
}

func mergeArrays(a, b []interface{}) []interface{} {
	out := make([]interface{}, 0, len(a)+len(b))
	out = append(out, a...)
	for _, candidate := range b {
		if len(out) >= maxMergedArrayLen {
			break
		}
		if !containsDeepEqual(out, candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

func containsDeepEqual(haystack []interface{}, needle interface{}) bool {
	needleBytes, err := json.Marshal(needle)
	if err != nil {
		return false
	}
	for _, item := range haystack {
		itemBytes, err := json.Marshal(item)
		if err != nil {
			continue
		}
		if string(itemBytes) == string(needleBytes) {
			return true
		}
	}
	return false
}

func isEmptyScalar(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return false
	default:
		return false
	}
}
