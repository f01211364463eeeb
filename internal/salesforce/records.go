package salesforce

import (
	"fmt"
	"strings"
)

// Mogrify rewrites a raw list-view row in place: the columns array of
// {fieldNameOrPath, value, ...} objects becomes a map keyed by the
// normalized field name, with '.' replaced by '_'. The transform must
// be applied exactly once per record; a second application is detected
// and rejected rather than silently producing garbage.
func Mogrify(record map[string]any) error {
	rawColumns, ok := record["columns"]
	if !ok {
		return fmt.Errorf("record has no columns field")
	}

	if _, normalized := rawColumns.(map[string]any); normalized {
		return fmt.Errorf("record columns are already normalized")
	}

	columns, ok := rawColumns.([]any)
	if !ok {
		return fmt.Errorf("record columns have unexpected type %T", rawColumns)
	}

	normalized := make(map[string]any, len(columns))
	for _, raw := range columns {
		column, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("record column has unexpected type %T", raw)
		}
		name, ok := column["fieldNameOrPath"].(string)
		if !ok {
			return fmt.Errorf("record column is missing fieldNameOrPath")
		}
		delete(column, "fieldNameOrPath")
		normalized[strings.ReplaceAll(name, ".", "_")] = column
	}

	record["columns"] = normalized
	return nil
}

// RecordID extracts the object id from a mogrified record.
func RecordID(record map[string]any) (string, error) {
	columns, ok := record["columns"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("record columns are not normalized")
	}
	idColumn, ok := columns["Id"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("record has no Id column")
	}
	id, ok := idColumn["value"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("record Id column has no value")
	}
	return id, nil
}
