// Package model defines shared data structures for the ingestion service.
package model

import "time"

// Offer is a normalised job offer fetched from the France Travail
// "Offres d'emploi v2" search API. It is ephemeral: offers live only for
// the duration of an ingestion run before being turned into OfferRows.
//
// Raw holds the untouched provider JSON for the item, kept for traceability
// and as enrichment input. An Offer with an empty ID never leaves the
// mapping boundary.
type Offer struct {
	ID                  string
	DateCreation        string // ISO-8601 as returned by the API
	Intitule            string
	Description         string
	EntrepriseNom       string
	ContactNom          string
	ContactEmail        string
	ContactTelephone    string
	EntrepriseAPropos   string
	CodePostal          string
	TypeContratLibelle  string
	DureeTravailLibelle string
	Raw                 string
}

// OfferRow is the persisted shape of an offer: the display columns of the
// Offres table plus the full untruncated texts kept alongside the one-line
// summaries. OffreID is immutable and is the sole dedup/join key.
type OfferRow struct {
	OffreID          string
	DateCreation     time.Time
	Intitule         string
	OfferURL         string
	Resume           string
	DescriptionFull  string
	EntrepriseNom    string
	ContactNom       string
	CodePostal       string
	TypeContrat      string
	Etp              string
	ContactEmail     string
	ContactTelephone string
	APropos          string
	AProposFull      string
}

// RawImport pairs an offer id with the full provider JSON, persisted once
// per ingested offer and never re-parsed back into an Offer.
type RawImport struct {
	OffreID string
	RawJSON string
}

// ExclusionRow is one user-authored exclusion rule as stored, before
// parsing: which offer field it applies to and the raw pattern text.
type ExclusionRow struct {
	Field   string
	Pattern string
}

// Exclusion rule fields.
const (
	FieldIntitule    = "intitule"
	FieldEntreprise  = "entreprise"
	FieldDescription = "description"
	FieldRaw         = "raw"
	FieldContrat     = "contrat"
)
