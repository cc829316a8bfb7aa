package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/record"
)

// ExportJSON writes the batch result as a JSON document keyed by URL, with
// a summary block up front.
func ExportJSON(w io.Writer, result *models.BatchResult) error {
	items := make(map[string]any, len(result.Items))
	for _, item := range result.Items {
		entry := map[string]any{
			"success":  item.Success,
			"kind":     item.Kind,
			"attempts": item.Attempts,
		}
		if item.Success {
			entry["record"] = item.Record
		} else if item.Failure != nil {
			entry["error"] = item.Failure
		}
		items[item.URL] = entry
	}

	doc := map[string]any{
		"summary": map[string]any{
			"total":       len(result.Items),
			"succeeded":   result.Succeeded,
			"failed":      result.Failed,
			"duration_ms": result.Duration.Milliseconds(),
		},
		"items": items,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ExportCSV writes the batch result as a flat table. When a schema is known
// for kind, its field order fixes the columns; otherwise columns are the
// sorted union of all record keys. List values are joined with "; ".
func ExportCSV(w io.Writer, result *models.BatchResult, kind string, validator *record.Validator) error {
	fields := columnsFor(result, kind, validator)

	cw := csv.NewWriter(w)
	header := append([]string{"url", "status", "error"}, fields...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("storage: write csv header: %w", err)
	}

	for _, item := range result.Items {
		row := make([]string, 0, len(header))
		if item.Success {
			row = append(row, item.URL, "ok", "")
		} else {
			msg := ""
			if item.Failure != nil {
				msg = fmt.Sprintf("%s: %s", item.Failure.Kind, item.Failure.Message)
			}
			row = append(row, item.URL, "failed", msg)
		}
		for _, f := range fields {
			row = append(row, cellValue(item.Record[f]))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("storage: write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func columnsFor(result *models.BatchResult, kind string, validator *record.Validator) []string {
	if validator != nil {
		if schema, ok := validator.SchemaFor(kind); ok {
			fields := make([]string, len(schema.Fields))
			for i, f := range schema.Fields {
				fields[i] = f.Name
			}
			return fields
		}
	}

	seen := make(map[string]struct{})
	for _, item := range result.Items {
		for k := range item.Record {
			seen[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func cellValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		return strings.Join(val, "; ")
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = cellValue(p)
		}
		return strings.Join(parts, "; ")
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
