package model

// HeadersOffres is the canonical display header of the Offres table, in
// column order. AI jobs address cells through these names (both as prompt
// variables under the "Offres." namespace and as target columns), so the
// names are part of the user-facing contract and must stay stable.
var HeadersOffres = []string{
	"Date",
	"Poste",
	"Résumé",
	"Entreprise",
	"Contact",
	"CP",
	"Contrat",
	"ETP",
	"Email",
	"Téléphone",
	"À propos",
	"offre_ID",
}

// ColOffreID is the technical join-key column of the Offres table.
const ColOffreID = "offre_ID"

// Table is a header-plus-rows view of the Offres table, the shape consumed
// by the AI job runner.
type Table struct {
	Header []string
	Rows   []TableRow
}

// TableRow is one data row. Number is the 1-based position of the row in
// the read order, reported in audit log entries. Values maps header names
// to cell contents; every header name has an entry, possibly empty.
type TableRow struct {
	Number  int
	OffreID string
	Values  map[string]string
}
