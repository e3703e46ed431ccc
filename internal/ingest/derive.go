package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mavailable/offres-france-travail/internal/ftapi"
	"github.com/mavailable/offres-france-travail/internal/model"
)

// firstLine returns the first non-empty line of s, trimmed. Used for the
// one-line Résumé and À propos columns; the full text is kept separately.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// toDate parses the API's ISO-8601 creation date. An unparseable or
// missing date falls back to the ingestion time rather than failing the
// whole offer.
func toDate(iso string, now time.Time) time.Time {
	if iso == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return now
	}
	return t
}

var hoursPerWeekRe = regexp.MustCompile(`(?i)(\d{1,2}(?:[.,]\d+)?)\s*H\s*/?\s*semaine`)

// parseHoursPerWeek extracts the weekly hours from a work-duration label
// such as "35H/semaine" or "17,5 H / semaine".
func parseHoursPerWeek(label string) (float64, bool) {
	m := hoursPerWeekRe.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	hours, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || hours <= 0 {
		return 0, false
	}
	return hours, true
}

// ComputeEtpPercent turns a work-duration label into a full-time-equivalent
// percentage against a 35-hour week, e.g. "17,5 H/semaine" gives "50%".
// Labels without an hour figure give an empty string.
func ComputeEtpPercent(label string) string {
	hours, ok := parseHoursPerWeek(label)
	if !ok {
		return ""
	}
	pct := int(math.Round(hours / 35.0 * 100.0))
	return strconv.Itoa(pct) + "%"
}

// buildOfferRow derives the persisted row for a freshly fetched offer.
func buildOfferRow(o model.Offer, now time.Time) model.OfferRow {
	return model.OfferRow{
		OffreID:          o.ID,
		DateCreation:     toDate(o.DateCreation, now),
		Intitule:         strings.TrimSpace(o.Intitule),
		OfferURL:         ftapi.PublicOfferURL(o.ID),
		Resume:           firstLine(o.Description),
		DescriptionFull:  o.Description,
		EntrepriseNom:    strings.TrimSpace(o.EntrepriseNom),
		ContactNom:       o.ContactNom,
		CodePostal:       o.CodePostal,
		TypeContrat:      o.TypeContratLibelle,
		Etp:              ComputeEtpPercent(o.DureeTravailLibelle),
		ContactEmail:     o.ContactEmail,
		ContactTelephone: o.ContactTelephone,
		APropos:          firstLine(o.EntrepriseAPropos),
		AProposFull:      o.EntrepriseAPropos,
	}
}
