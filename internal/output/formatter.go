// Package output renders CLI results as tables, JSON or YAML.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Formatter turns a value into printable text.
type Formatter interface {
	Format(data any) string
}

// NewFormatter returns a Formatter for format. Unknown names fall back to
// the table formatter.
func NewFormatter(format string) Formatter {
	switch strings.ToLower(format) {
	case "json":
		return JSONFormatter{}
	case "yaml":
		return YAMLFormatter{}
	default:
		return TableFormatter{}
	}
}

// TableFormatter prints slices of structs as aligned columns, single structs
// as key/value lines and maps as sorted key/value lines. Column names come
// from the `table` struct tag; fields tagged `table:"-"` are skipped.
type TableFormatter struct{}

func (TableFormatter) Format(data any) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice:
		if v.Len() == 0 {
			return "No resources found.\n"
		}
		elem := indirect(v.Index(0))
		if elem.Kind() != reflect.Struct {
			for i := 0; i < v.Len(); i++ {
				fmt.Fprintln(w, v.Index(i).Interface())
			}
			break
		}
		cols := columns(elem.Type())
		headers := make([]string, len(cols))
		for i, c := range cols {
			headers[i] = c.name
		}
		fmt.Fprintln(w, strings.Join(headers, "\t"))
		for i := 0; i < v.Len(); i++ {
			row := indirect(v.Index(i))
			vals := make([]string, len(cols))
			for j, c := range cols {
				vals[j] = fmt.Sprint(row.Field(c.index).Interface())
			}
			fmt.Fprintln(w, strings.Join(vals, "\t"))
		}
	case reflect.Struct:
		for _, c := range columns(v.Type()) {
			fmt.Fprintf(w, "%s:\t%v\n", c.name, v.Field(c.index).Interface())
		}
	case reflect.Map:
		keys := make([]string, 0, v.Len())
		vals := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, k)
			vals[k] = iter.Value().Interface()
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s:\t%v\n", k, vals[k])
		}
	default:
		fmt.Fprintln(w, data)
	}

	w.Flush()
	return buf.String()
}

type column struct {
	name  string
	index int
}

func columns(t reflect.Type) []column {
	out := make([]column, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.ToUpper(f.Name)
		if tag, ok := f.Tag.Lookup("table"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}
		out = append(out, column{name: name, index: i})
	}
	return out
}

func indirect(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Ptr {
		return v.Elem()
	}
	return v
}

// JSONFormatter prints indented JSON followed by a newline.
type JSONFormatter struct{}

func (JSONFormatter) Format(data any) string {
	return encode("JSON", func() ([]byte, error) {
		b, err := json.MarshalIndent(data, "", "  ")
		return append(b, '\n'), err
	})
}

// YAMLFormatter prints a YAML document.
type YAMLFormatter struct{}

func (YAMLFormatter) Format(data any) string {
	return encode("YAML", func() ([]byte, error) { return yaml.Marshal(data) })
}

func encode(kind string, marshal func() ([]byte, error)) string {
	b, err := marshal()
	if err != nil {
		return fmt.Sprintf("error formatting %s: %v\n", kind, err)
	}
	return string(b)
}
