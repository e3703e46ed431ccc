package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ExtractJSONObject parses a model response expected to contain a JSON
// object: a direct parse first, then the outermost {...} block, so prose
// around the object is tolerated.
func ExtractJSONObject(text string) (map[string]any, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, fmt.Errorf("empty response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return obj, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err == nil {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("no JSON object in response")
}

var numberRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// ParseNumber extracts the first number from a model response, accepting a
// comma decimal separator.
func ParseNumber(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("empty response, expected a number")
	}
	m := numberRe.FindString(s)
	if m == "" {
		if len(s) > 80 {
			s = s[:80]
		}
		return 0, fmt.Errorf("no number in response: %s", s)
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", m, err)
	}
	return n, nil
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// stringify renders a parsed JSON value as a cell string: scalars plainly,
// anything structured as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatNumber(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func joinStrings(v any) string {
	arr, ok := v.([]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range arr {
		if s := strings.TrimSpace(stringify(item)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// ValueForTarget resolves the cell value for one target column from a
// parsed JSON response. The default rule uses the column name as the JSON
// key; the commercial_score and keywords jobs carry bespoke mappings
// between their schema and their column names.
func ValueForTarget(jobKey, target string, parsed map[string]any) string {
	if parsed == nil {
		return ""
	}

	switch jobKey {
	case "commercial_score":
		switch target {
		case "Score commercial":
			return stringify(parsed["score"])
		case "Keywords +":
			return joinStrings(parsed["keywords_positive"])
		case "Keywords -":
			return joinStrings(parsed["keywords_negative"])
		case "Explication":
			return stringify(parsed["explanation"])
		}
	case "keywords":
		kn, _ := parsed["keywords_negative"].(map[string]any)
		switch target {
		case "Keywords - Intitule":
			return joinStrings(kn["intitule"])
		case "Keywords - Description":
			return joinStrings(kn["description"])
		case "Keywords - EntrepriseNom":
			return joinStrings(kn["entrepriseNom"])
		case "Keywords - EntrepriseAPropos":
			return joinStrings(kn["entrepriseAPropos"])
		}
	}

	return stringify(parsed[target])
}
