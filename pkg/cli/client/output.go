package client

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// PrintJSON writes v as indented JSON followed by a newline.
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintTable writes rows under upper-cased column headers.
func PrintTable(w io.Writer, columns []string, rows [][]string) {
	if len(columns) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = strings.ToUpper(c)
	}
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// PrintDetail writes one "key:  value" line per field, sorted by key.
func PrintDetail(w io.Writer, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	maxKeyLen := 0
	for k := range fields {
		keys = append(keys, k)
		if len(k) > maxKeyLen {
			maxKeyLen = len(k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		pad := strings.Repeat(" ", maxKeyLen-len(k))
		_, _ = fmt.Fprintf(w, "%s:%s  %s\n", k, pad, formatValue(fields[k]))
	}
}

// ExtractField renders data[key] for display. Composite values are JSON.
func ExtractField(data map[string]interface{}, key string) string {
	return formatValue(data[key])
}

// ExtractRows renders each object in items as a row of the given columns.
// Items that are not objects are skipped.
func ExtractRows(items []interface{}, columns []string) [][]string {
	var rows [][]string
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = ExtractField(m, c)
		}
		rows = append(rows, row)
	}
	return rows
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
