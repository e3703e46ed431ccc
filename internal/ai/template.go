// Package ai runs declarative enrichment jobs over persisted offer rows:
// templated prompts, an OpenAI Responses API client with retry and caching,
// response parsing, and an append-only audit log.
package ai

import (
	"regexp"
	"strings"
)

// Placeholder keys may carry accented letters since prompt variables are
// derived from French column headers ("Offres.Résumé", "Offres.Téléphone").
var placeholderRe = regexp.MustCompile(`\{\{\s*([\w.\-À-ÿ]+)\s*\}\}`)

// Render substitutes {{ Namespace.key }} placeholders with values from
// vars. Unknown keys render as empty strings; values are inserted verbatim,
// never re-expanded.
func Render(template string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := strings.TrimSpace(placeholderRe.FindStringSubmatch(m)[1])
		return vars[key]
	})
}
