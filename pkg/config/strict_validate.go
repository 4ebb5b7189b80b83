package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// FieldIssue describes one rejected field from a strict decode pass: an
// unknown key (typo or removed field) or a value that didn't match its
// declared type.
type FieldIssue struct {
	Field       string   // dotted path, e.g. "router_settings.routing_stategy"
	Message     string
	Suggestions []string // nearest known field names, for typos
}

// StrictDecodeResult collects every issue a strict decode of a raw YAML
// document found against the Config schema.
type StrictDecodeResult struct {
	UnknownFields []FieldIssue
	TypeErrors    []FieldIssue
}

// OK reports whether the decode found nothing worth failing the load over.
func (r *StrictDecodeResult) OK() bool {
	return len(r.UnknownFields) == 0 && len(r.TypeErrors) == 0
}

// Report renders every issue as a multi-line message suitable for wrapping
// into the error Load returns.
func (r *StrictDecodeResult) Report() string {
	if r.OK() {
		return ""
	}
	var sb strings.Builder
	if len(r.UnknownFields) > 0 {
		sb.WriteString("unknown fields:\n")
		for _, f := range r.UnknownFields {
			sb.WriteString(fmt.Sprintf("  - %s: %s", f.Field, f.Message))
			if len(f.Suggestions) > 0 {
				sb.WriteString(fmt.Sprintf(" (did you mean %s?)", strings.Join(f.Suggestions, ", ")))
			}
			sb.WriteString("\n")
		}
	}
	for _, f := range r.TypeErrors {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Field, f.Message))
	}
	return sb.String()
}

// validateStrict runs a second, strict decode of the same raw YAML document
// Load already decoded permissively, rejecting any key that Config's yaml
// tags don't declare (spec §6: a malformed model_list/router_settings entry
// should fail the load with the offending key named, not silently become a
// zero value). Grounded on kadirpekel/hector's pkg/config strict validator,
// which runs mapstructure with ErrorUnused over the same raw map for the
// same reason before trusting a permissive yaml.Unmarshal.
func validateStrict(raw map[string]any) (*StrictDecodeResult, error) {
	result := &StrictDecodeResult{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &Config{},
		ErrorUnused: true,
		TagName:     "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("build strict decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		classifyDecodeError(err, result)
	}
	return result, nil
}

// classifyDecodeError sorts mapstructure's (possibly multi-line) decode
// error into unknown-field versus type-mismatch issues, since
// mapstructure.Decode bundles every field error into one *mapstructure.Error
// rather than returning them individually.
func classifyDecodeError(err error, result *StrictDecodeResult) {
	known := knownFields(reflect.TypeOf(Config{}))
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "* "))
		if line == "" {
			continue
		}
		switch {
		case strings.Contains(line, "has invalid keys:"):
			parent, keys := splitInvalidKeys(line)
			for _, key := range keys {
				path := key
				if parent != "" {
					path = parent + "." + key
				}
				result.UnknownFields = append(result.UnknownFields, FieldIssue{
					Field:       path,
					Message:     "field is not recognized in this configuration schema",
					Suggestions: nearestFields(path, known),
				})
			}
		case strings.Contains(line, "expected type") || strings.Contains(line, "cannot unmarshal") || strings.Contains(line, "cannot decode"):
			result.TypeErrors = append(result.TypeErrors, FieldIssue{Field: fieldNameIn(line), Message: line})
		default:
			result.TypeErrors = append(result.TypeErrors, FieldIssue{Field: "config", Message: line})
		}
	}
}

// splitInvalidKeys pulls the parent path and the comma-separated key list out
// of one "'parent' has invalid keys: a, b, c" mapstructure error line.
func splitInvalidKeys(line string) (parent string, keys []string) {
	idx := strings.Index(line, "has invalid keys:")
	before := line[:idx]
	if open := strings.LastIndex(before, "'"); open >= 0 {
		if close := strings.LastIndex(before[:open], "'"); close >= 0 {
			parent = before[close+1 : open]
		}
	}
	rest := strings.TrimSpace(line[idx+len("has invalid keys:"):])
	for _, k := range strings.Split(rest, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return parent, keys
}

// fieldNameIn extracts the single-quoted field name from a mapstructure
// type-error line, falling back to "config" when none is present.
func fieldNameIn(line string) string {
	if start := strings.Index(line, "'"); start >= 0 {
		if end := strings.Index(line[start+1:], "'"); end >= 0 {
			return line[start+1 : start+1+end]
		}
	}
	return "config"
}

// knownFields walks t's yaml tags recursively, flattening nested structs
// and slice/map element structs into dotted paths, the set nearestFields
// matches typo suggestions against.
func knownFields(t reflect.Type) []string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return knownFields(t.Elem())
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var fields []string
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("yaml")
		name := strings.SplitN(tag, ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, name)
		for _, nested := range knownFields(t.Field(i).Type) {
			fields = append(fields, name+"."+nested)
		}
	}
	return fields
}

// nearestFields returns up to three known field names within Levenshtein
// distance 2 of path, the suggestions shown for a likely typo.
func nearestFields(path string, known []string) []string {
	type scored struct {
		name     string
		distance int
	}
	var candidates []scored
	for _, k := range known {
		if d := levenshtein(path, k); d <= 2 {
			candidates = append(candidates, scored{k, d})
		}
	}
	for i := range candidates {
		best := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].distance < candidates[best].distance {
				best = j
			}
		}
		candidates[i], candidates[best] = candidates[best], candidates[i]
	}
	var out []string
	for i := 0; i < len(candidates) && i < 3; i++ {
		out = append(out, candidates[i].name)
	}
	return out
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur := row[j]
			del := row[j] + 1
			ins := row[j-1] + 1
			sub := prev + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			row[j] = min
			prev = cur
		}
	}
	return row[len(b)]
}
