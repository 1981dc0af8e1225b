package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatLine renders one JSON run log record as a single readable line.
// Lines that are not JSON objects are returned unchanged.
func FormatLine(line string) string {
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil || record == nil {
		return line
	}

	var b strings.Builder
	if raw, ok := record["ts"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			b.WriteString(ts.UTC().Format("15:04:05"))
			b.WriteByte(' ')
		}
	}
	if level, ok := record["level"].(string); ok {
		fmt.Fprintf(&b, "%-5s ", strings.ToUpper(level))
	}
	if msg, ok := record["msg"].(string); ok {
		b.WriteString(msg)
	}

	keys := make([]string, 0, len(record))
	for key := range record {
		switch key {
		case "ts", "level", "msg":
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, formatValue(record[key]))
	}
	return b.String()
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		if strings.ContainsAny(v, " \t\"=") {
			return fmt.Sprintf("%q", v)
		}
		return v
	case nil:
		return "null"
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
