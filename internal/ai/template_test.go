package ai_test

import (
	"testing"

	"github.com/mavailable/offres-france-travail/internal/ai"
)

func TestRender(t *testing.T) {
	vars := map[string]string{
		"Offres.Poste":     "Travailleur social",
		"Offres.Résumé":    "Accompagnement",
		"Offres.Téléphone": "0102030405",
		"Import.raw_json":  `{"id":"1"}`,
	}

	cases := []struct {
		name     string
		template string
		want     string
	}{
		{"plain text untouched", "no placeholders here", "no placeholders here"},
		{"simple substitution", "Poste: {{Offres.Poste}}", "Poste: Travailleur social"},
		{"inner whitespace tolerated", "{{  Offres.Poste  }}", "Travailleur social"},
		{"accented key", "{{Offres.Résumé}} / {{Offres.Téléphone}}", "Accompagnement / 0102030405"},
		{"unknown key renders empty", "[{{Offres.Inconnu}}]", "[]"},
		{"namespaced raw json", "brut: {{Import.raw_json}}", `brut: {"id":"1"}`},
		{"multiple occurrences", "{{Offres.Poste}} + {{Offres.Poste}}", "Travailleur social + Travailleur social"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ai.Render(c.template, vars); got != c.want {
				t.Errorf("Render(%q) = %q, want %q", c.template, got, c.want)
			}
		})
	}
}

// Substituted values are inserted verbatim: a value that itself looks like
// a placeholder is not expanded again.
func TestRender_NoRecursion(t *testing.T) {
	vars := map[string]string{
		"a": "{{b}}",
		"b": "boom",
	}
	if got := ai.Render("{{a}}", vars); got != "{{b}}" {
		t.Errorf("Render = %q, want the literal {{b}}", got)
	}
}
