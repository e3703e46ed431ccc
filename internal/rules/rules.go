// Package rules implements the exclusion-rule engine: user-authored literal
// or regex patterns used to suppress offers matching a given field.
package rules

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mavailable/offres-france-travail/internal/model"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize lowercases, strips diacritics and collapses whitespace runs to
// a single space. It is total and idempotent: it never fails, and
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))

	// NFD-decompose, then drop combining marks.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	return whitespaceRun.ReplaceAllString(s, " ")
}

// Rule is one parsed exclusion rule. A rule is never mutated after
// construction: it is either a compiled regex or a normalized
// "contains" needle.
type Rule struct {
	Raw              string
	IsRegex          bool
	Regex            *regexp.Regexp
	NormalizedNeedle string
}

// Parse turns a raw rule string into a Rule.
//
// A string of the form /pattern/flags is compiled as a regex (flags i, m
// and s map to the corresponding inline flags; g and u are accepted and
// ignored). On a compile failure or an unknown flag the whole string
// falls back to a literal contains-rule, so Parse never fails. An empty
// (or whitespace-only) string yields no rule at all.
func Parse(raw string) (Rule, bool) {
	r := strings.TrimSpace(raw)
	if r == "" {
		return Rule{}, false
	}

	if strings.HasPrefix(r, "/") {
		if last := strings.LastIndex(r, "/"); last > 0 {
			pattern := r[1:last]
			flags := r[last+1:]
			if re := compileWithFlags(pattern, flags); re != nil {
				return Rule{Raw: r, IsRegex: true, Regex: re}, true
			}
		}
	}

	return Rule{Raw: r, NormalizedNeedle: Normalize(r)}, true
}

// compileWithFlags compiles a JS-style /pattern/flags body, returning nil
// when the flags or the pattern are invalid.
func compileWithFlags(pattern, flags string) *regexp.Regexp {
	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			inline.WriteRune(f)
		case 'g', 'u':
			// Irrelevant under Go's matching semantics.
		default:
			return nil
		}
	}

	expr := pattern
	if inline.Len() > 0 {
		expr = "(?" + inline.String() + ")" + pattern
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	return re
}

// MatchesAny reports whether any rule matches text. Regex rules are tested
// against both the raw and the normalized text, so patterns may rely on
// accents or not; literal rules match as a normalized substring. An empty
// rule set never matches.
func MatchesAny(text string, set []Rule) bool {
	if len(set) == 0 {
		return false
	}
	normalized := Normalize(text)

	for _, rule := range set {
		if rule.IsRegex && rule.Regex != nil {
			if rule.Regex.MatchString(text) || rule.Regex.MatchString(normalized) {
				return true
			}
		} else if rule.NormalizedNeedle != "" {
			if strings.Contains(normalized, rule.NormalizedNeedle) {
				return true
			}
		}
	}
	return false
}

// Exclusions groups the per-field rule sets.
type Exclusions struct {
	Intitule    []Rule
	Entreprise  []Rule
	Description []Rule
	Raw         []Rule
	Contrat     []Rule
}

// FromRows builds Exclusions from stored rule rows, dropping empty
// patterns and silently keeping invalid regexes as literal rules.
func FromRows(rows []model.ExclusionRow) Exclusions {
	var ex Exclusions
	for _, row := range rows {
		rule, ok := Parse(row.Pattern)
		if !ok {
			continue
		}
		switch row.Field {
		case model.FieldIntitule:
			ex.Intitule = append(ex.Intitule, rule)
		case model.FieldEntreprise:
			ex.Entreprise = append(ex.Entreprise, rule)
		case model.FieldDescription:
			ex.Description = append(ex.Description, rule)
		case model.FieldRaw:
			ex.Raw = append(ex.Raw, rule)
		case model.FieldContrat:
			ex.Contrat = append(ex.Contrat, rule)
		}
	}
	return ex
}

// Candidate carries the offer fields evaluated against the rule sets.
type Candidate struct {
	Intitule    string
	Entreprise  string
	Description string
	Raw         string
	Contrat     string
}

// IsExcluded reports whether any field of the candidate matches its
// corresponding rule set.
func (ex *Exclusions) IsExcluded(c Candidate) bool {
	if MatchesAny(c.Intitule, ex.Intitule) {
		return true
	}
	if MatchesAny(c.Entreprise, ex.Entreprise) {
		return true
	}
	if MatchesAny(c.Description, ex.Description) {
		return true
	}
	if MatchesAny(c.Raw, ex.Raw) {
		return true
	}
	if MatchesAny(c.Contrat, ex.Contrat) {
		return true
	}
	return false
}
