package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"artstudio/internal/logging"
)

// Record is one decoded line of the JSON log.
type Record struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	SessionID string
	Fields    map[string]any
}

// ParseRecord decodes a JSON log line. Lines that are not JSON objects
// report false.
func ParseRecord(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Record{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Record{}, false
	}
	rec := Record{
		Level:     takeString(raw, "level"),
		Message:   takeString(raw, "msg"),
		Component: takeString(raw, logging.FieldComponent),
		SessionID: takeString(raw, logging.FieldSessionID),
		Fields:    raw,
	}
	if ts := takeString(raw, "ts"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.Time = parsed
		}
	}
	return rec, true
}

func takeString(raw map[string]any, key string) string {
	value, ok := raw[key]
	if !ok {
		return ""
	}
	delete(raw, key)
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// Format renders the record as a single console line: time, level,
// component, message, then the remaining fields sorted by key.
func (r Record) Format() string {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	level := strings.ToUpper(r.Level)
	if level == "" {
		level = "INFO"
	}
	fmt.Fprintf(&b, "%-5s ", level)
	if r.Component != "" {
		fmt.Fprintf(&b, "[%s] ", r.Component)
	}
	b.WriteString(r.Message)
	if r.SessionID != "" {
		fmt.Fprintf(&b, " %s=%s", logging.FieldSessionID, r.SessionID)
	}
	keys := make([]string, 0, len(r.Fields))
	for key := range r.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, r.Fields[key])
	}
	return b.String()
}

// FormatLine renders a raw log line, passing non-JSON lines through.
func FormatLine(line string) string {
	rec, ok := ParseRecord(line)
	if !ok {
		return line
	}
	return rec.Format()
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter narrows log records. The zero Filter matches every line.
type Filter struct {
	SessionID string
	Component string
	MinLevel  string
}

func (f Filter) empty() bool {
	return f.SessionID == "" && f.Component == "" && f.MinLevel == ""
}

// Matches reports whether line passes the filter. Non-JSON lines only pass
// the zero Filter.
func (f Filter) Matches(line string) bool {
	if f.empty() {
		return true
	}
	rec, ok := ParseRecord(line)
	if !ok {
		return false
	}
	if f.SessionID != "" && !strings.HasPrefix(rec.SessionID, strings.ToLower(f.SessionID)) {
		return false
	}
	if f.Component != "" && !strings.EqualFold(rec.Component, f.Component) {
		return false
	}
	if f.MinLevel != "" {
		threshold, ok := levelRank[strings.ToLower(f.MinLevel)]
		if ok && levelRank[strings.ToLower(rec.Level)] < threshold {
			return false
		}
	}
	return true
}
