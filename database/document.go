package database

import (
	"sort"
	"strconv"
	"strings"

	"github.com/saiset-co/sai-data/types"
)

// Document bookkeeping fields added by every backend.
const (
	FieldInternalID = "internal_id"
	FieldCreatedAt  = "cr_time"
	FieldChangedAt  = "ch_time"
)

func matchesFilter(doc map[string]interface{}, filter map[string]interface{}) bool {
	if filter == nil {
		return true
	}

	for key, value := range filter {
		if !matchesField(doc, key, value) {
			return false
		}
	}
	return true
}

func matchesField(doc map[string]interface{}, key string, filterValue interface{}) bool {
	// Nested keys navigate the document, e.g. "user.id".
	keys := strings.Split(key, ".")
	current := doc

	for i, k := range keys {
		if i == len(keys)-1 {
			docValue, exists := current[k]
			if !exists {
				return false
			}
			return compareValues(docValue, filterValue)
		}

		next, exists := current[k]
		if !exists {
			return false
		}
		nextMap, ok := next.(map[string]interface{})
		if !ok {
			return false
		}
		current = nextMap
	}

	return false
}

func compareValues(docValue, filterValue interface{}) bool {
	switch filter := filterValue.(type) {
	case map[string]interface{}:
		for op, value := range filter {
			switch op {
			case "$eq":
				return looseEqual(docValue, value)
			case "$ne":
				return !looseEqual(docValue, value)
			case "$gt":
				return compareNumbers(docValue, value, ">")
			case "$gte":
				return compareNumbers(docValue, value, ">=")
			case "$lt":
				return compareNumbers(docValue, value, "<")
			case "$lte":
				return compareNumbers(docValue, value, "<=")
			case "$in":
				if arr, ok := value.([]interface{}); ok {
					for _, v := range arr {
						if looseEqual(docValue, v) {
							return true
						}
					}
				}
				return false
			case "$nin":
				if arr, ok := value.([]interface{}); ok {
					for _, v := range arr {
						if looseEqual(docValue, v) {
							return false
						}
					}
				}
				return true
			}
		}
		return false
	default:
		return looseEqual(docValue, filterValue)
	}
}

// looseEqual treats numerically equal values as equal even when their Go
// types differ, since JSON decoding produces float64.
func looseEqual(a, b interface{}) bool {
	if a == b {
		return true
	}

	aVal, aOk := toFloat64(a)
	bVal, bOk := toFloat64(b)
	if aOk && bOk {
		return aVal == bVal
	}

	return false
}

func compareNumbers(a, b interface{}, op string) bool {
	aVal, aOk := toFloat64(a)
	bVal, bOk := toFloat64(b)

	if !aOk || !bOk {
		return false
	}

	switch op {
	case ">":
		return aVal > bVal
	case ">=":
		return aVal >= bVal
	case "<":
		return aVal < bVal
	case "<=":
		return aVal <= bVal
	}
	return false
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func applyUpdateOperations(doc map[string]interface{}, update interface{}) error {
	updateMap, ok := update.(map[string]interface{})
	if !ok {
		return types.Errorf(types.ErrDatabaseInvalidData, "update data must be a map")
	}

	for op, value := range updateMap {
		switch op {
		case "$set":
			if setMap, ok := value.(map[string]interface{}); ok {
				for key, val := range setMap {
					doc[key] = val
				}
			}
		case "$unset":
			if unsetMap, ok := value.(map[string]interface{}); ok {
				for key := range unsetMap {
					delete(doc, key)
				}
			}
		case "$inc":
			if incMap, ok := value.(map[string]interface{}); ok {
				for key, val := range incMap {
					incVal, ok := toFloat64(val)
					if !ok {
						continue
					}
					if current, exists := doc[key]; exists {
						if currentVal, ok := toFloat64(current); ok {
							doc[key] = currentVal + incVal
						}
					} else {
						doc[key] = incVal
					}
				}
			}
		default:
			doc[op] = value
		}
	}

	return nil
}

func sortDocuments(docs []map[string]interface{}, sortSpec map[string]int) {
	if len(sortSpec) == 0 {
		return
	}

	// Deterministic order across multiple sort fields.
	fields := make([]string, 0, len(sortSpec))
	for field := range sortSpec {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range fields {
			direction := sortSpec[field]
			cmp := compareForSort(docs[i][field], docs[j][field])
			if cmp == 0 {
				continue
			}
			if direction < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareForSort(a, b interface{}) int {
	aVal, aOk := toFloat64(a)
	bVal, bOk := toFloat64(b)
	if aOk && bOk {
		switch {
		case aVal < bVal:
			return -1
		case aVal > bVal:
			return 1
		default:
			return 0
		}
	}

	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.Compare(aStr, bStr)
	}

	return 0
}
