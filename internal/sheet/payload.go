// Package sheet loads the planner spreadsheet from its upstream web app
// (or a local export), validates and normalizes it, and keeps the SQLite
// cache in sync.
package sheet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Payload is one snapshot of the two sheets, header rows included.
type Payload struct {
	Monthly [][]any
	Daily   [][]any
}

// Sheets names the two tables inside the upstream document.
type Sheets struct {
	Monthly string
	Daily   string
}

// DefaultSheets matches the upstream web app's keys.
var DefaultSheets = Sheets{Monthly: "Monthly", Daily: "daily_OCT"}

// Validator checks decoded documents against a JSON Schema requiring both
// sheets, when present, to be arrays of arrays.
type Validator struct {
	sheets Sheets
	schema *jsonschema.Schema
}

func NewValidator(sheets Sheets) (*Validator, error) {
	table := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "array"},
	}
	doc := map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
		"properties": map[string]any{
			sheets.Monthly: table,
			sheets.Daily:   table,
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	const url = "mem://milkdiary/payload.schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{sheets: sheets, schema: schema}, nil
}

// Decode parses a JSON document and validates it.
func (v *Validator) Decode(data []byte) (*Payload, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return v.Payload(doc)
}

// Payload validates an already-decoded document (JSON types only) and
// extracts the two sheets. Missing sheets are empty.
func (v *Validator) Payload(doc any) (*Payload, error) {
	if err := v.schema.Validate(doc); err != nil {
		return nil, schemaError(err)
	}
	obj := doc.(map[string]any)
	return &Payload{
		Monthly: table(obj[v.sheets.Monthly]),
		Daily:   table(obj[v.sheets.Daily]),
	}, nil
}

func table(v any) [][]any {
	list, _ := v.([]any)
	out := make([][]any, 0, len(list))
	for _, r := range list {
		row, _ := r.([]any)
		out = append(out, row)
	}
	return out
}

// schemaError flattens a validation error tree into one message per leaf.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate payload: %w", err)
	}
	var msgs []string
	collectCauses(ve, &msgs)
	return fmt.Errorf("invalid payload: %s", strings.Join(msgs, "; "))
}

func collectCauses(ve *jsonschema.ValidationError, msgs *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*msgs = append(*msgs, loc+": "+ve.Message)
		return
	}
	for _, c := range ve.Causes {
		collectCauses(c, msgs)
	}
}

// NormalizeDates rewrites the "Date" column of the daily sheet to a plain
// YYYY-MM-DD in loc. Rows without a header are returned unchanged.
func NormalizeDates(daily [][]any, loc *time.Location) [][]any {
	if len(daily) == 0 {
		return daily
	}
	dateIdx := -1
	for i, c := range daily[0] {
		if s, ok := c.(string); ok && s == "Date" {
			dateIdx = i
			break
		}
	}
	if dateIdx < 0 {
		return daily
	}

	out := make([][]any, 0, len(daily))
	out = append(out, daily[0])
	for _, row := range daily[1:] {
		r := append([]any(nil), row...)
		if dateIdx < len(r) {
			if s, ok := r[dateIdx].(string); ok {
				r[dateIdx] = LocalDate(s, loc)
			}
		}
		out = append(out, r)
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// LocalDate converts a date or timestamp string to the calendar day in loc.
// Plain dates pass through; timestamps without an offset are taken as UTC.
// Unparseable values keep their first ten characters when those look like a
// date, and are returned as-is otherwise.
func LocalDate(value string, loc *time.Location) string {
	s := strings.TrimSpace(value)
	if s == "" {
		return ""
	}
	if looksLikeDate(s) && len(s) == 10 {
		return s
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc).Format("2006-01-02")
		}
	}
	if looksLikeDate(value) {
		return value[:10]
	}
	return value
}

func looksLikeDate(s string) bool {
	return len(s) >= 10 && s[4] == '-' && s[7] == '-'
}
