package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
)

// OutputFormat represents the desired output format.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteTable writes rows, a slice of structs, as aligned columns. Only
// fields with a `header` tag become columns; string slices are joined with
// commas.
func WriteTable(w io.Writer, rows any) error {
	val := reflect.ValueOf(rows)
	if val.Kind() != reflect.Slice {
		return fmt.Errorf("table rows must be a slice, got %s", val.Kind())
	}
	if val.Len() == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(headers(val.Index(0).Type()), "\t")); err != nil {
		return err
	}
	for i := 0; i < val.Len(); i++ {
		if _, err := fmt.Fprintln(tw, strings.Join(cells(val.Index(i)), "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func headers(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var out []string
	for i := 0; i < t.NumField(); i++ {
		if h := t.Field(i).Tag.Get("header"); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func cells(v reflect.Value) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	var out []string
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Tag.Get("header") == "" {
			continue
		}
		f := v.Field(i)
		switch {
		case f.Kind() == reflect.Slice && f.Type().Elem().Kind() == reflect.String:
			parts := make([]string, f.Len())
			for j := range parts {
				parts[j] = f.Index(j).String()
			}
			s := strings.Join(parts, ",")
			if s == "" {
				s = "-"
			}
			out = append(out, s)
		case f.Kind() == reflect.Bool:
			if f.Bool() {
				out = append(out, "yes")
			} else {
				out = append(out, "no")
			}
		default:
			out = append(out, fmt.Sprintf("%v", f.Interface()))
		}
	}
	return out
}
