package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNoJSON is returned when a completion holds no JSON object.
var ErrNoJSON = errors.New("no json object in response")

// ExtractJSON strips markdown fences and surrounding prose, returning the
// first complete JSON object found in raw. Braces in leading prose are skipped.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```JSON")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")

	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		var obj map[string]any
		dec := json.NewDecoder(strings.NewReader(raw[i:]))
		if err := dec.Decode(&obj); err == nil {
			return raw[i : i+int(dec.InputOffset())]
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return strings.TrimSpace(raw)
	}
	return raw[start : end+1]
}

// DecodeObject parses the JSON object embedded in a completion.
func DecodeObject(raw string) (map[string]any, error) {
	cleaned := ExtractJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, ErrNoJSON
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse json response: %w", err)
	}
	return data, nil
}

// Lookup returns the first present value among keys, matched case-insensitively.
func Lookup(data map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := data[key]; ok && v != nil {
			return v, true
		}
	}
	for k, v := range data {
		for _, key := range keys {
			if strings.EqualFold(k, key) && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

func CoerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

// CoerceFloat converts numbers and numeric strings ("75", "75%", "7.5/10")
// to float64. NaN is returned when v carries no number.
func CoerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		trimmed := strings.TrimSpace(val)
		trimmed = strings.TrimSuffix(trimmed, "%")
		if num, den, ok := strings.Cut(trimmed, "/"); ok {
			n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
			d, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
			if errN != nil || errD != nil || d == 0 {
				return math.NaN()
			}
			return n / d * 100
		}
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func CoerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	case []any:
		return strings.Join(CoerceStringList(val), "; ")
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// CoerceStringList accepts a list, a single string or a newline/semicolon
// separated string and returns the trimmed non-empty entries.
func CoerceStringList(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case nil:
	case []any:
		for _, item := range val {
			if s := CoerceString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range val {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, line := range strings.FieldsFunc(val, func(r rune) bool { return r == '\n' || r == ';' }) {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
			if line != "" {
				out = append(out, line)
			}
		}
	default:
		if s := CoerceString(val); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseSections reads "Key: value" sections from free text. A section runs
// until the next recognised key; keys match case-insensitively and may be
// wrapped in markdown emphasis. The result is keyed by the names passed in.
func ParseSections(raw string, keys ...string) map[string]string {
	sections := make(map[string]string)
	current := ""
	var buf []string

	flush := func() {
		if current == "" {
			return
		}
		if text := strings.TrimSpace(strings.Join(buf, "\n")); text != "" {
			sections[current] = text
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#-*• "))
		if key, rest, ok := matchSectionKey(trimmed, keys); ok {
			flush()
			current = key
			buf = buf[:0]
			if rest != "" {
				buf = append(buf, rest)
			}
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return sections
}

func matchSectionKey(line string, keys []string) (string, string, bool) {
	head, rest, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	head = strings.Trim(strings.TrimSpace(head), "*_ ")
	normalized := strings.ReplaceAll(strings.ToLower(head), " ", "_")
	for _, key := range keys {
		if normalized == strings.ToLower(key) {
			return key, strings.TrimSpace(strings.TrimLeft(rest, "*_ ")), true
		}
	}
	return "", "", false
}
