package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// Output formats.
const (
	OutputText = "text"
	OutputYAML = "yaml"
)

var (
	keyColor     = color.New(color.FgCyan)
	warningColor = color.New(color.FgYellow)
)

// PrintRecords writes the records in the format.
func PrintRecords(w io.Writer, records query.Records, format string) error {
	switch format {
	case OutputYAML:
		out := make([]map[string]any, len(records))
		for i, r := range records {
			out[i] = r
		}
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(out); err != nil {
			return err
		}
		return encoder.Close()

	case OutputText, "":
		for _, r := range records {
			if _, err := fmt.Fprintln(w, formatRecord(r)); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown output format `%s`", format)
	}
}

// formatRecord writes the fields of the record on one line, sorted by name.
func formatRecord(r query.Record) string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = keyColor.Sprint(name) + "=" + formatValue(r[name])
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		if strings.ContainsAny(v, " \t\"") {
			return fmt.Sprintf("%q", v)
		}
		return v
	case query.Record:
		return "{" + formatRecord(v) + "}"
	case query.Records:
		parts := make([]string, len(v))
		for i, r := range v {
			parts[i] = "{" + formatRecord(r) + "}"
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}

// PrintWarnings writes the errors that did not stop a query.
func PrintWarnings(w io.Writer, errs []error) {
	for _, err := range errs {
		warningColor.Fprintf(w, "warning: %s\n", err)
	}
}
