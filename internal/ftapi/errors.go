package ftapi

import "fmt"

// bodyPreviewMax bounds how much of an error response body is surfaced to
// the user: enough to debug, without flooding logs.
const bodyPreviewMax = 600

// AuthError reports a failed OAuth token acquisition. Fatal for the whole
// ingestion run.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("oauth token error HTTP %d: %s", e.Status, e.Body)
}

// SearchError reports a non-2xx, non-retried response from the offers
// search endpoint. Fatal for the whole ingestion run.
type SearchError struct {
	Status int
	Body   string
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("offers search error HTTP %d: %s", e.Status, e.Body)
}

func truncateBody(body []byte) string {
	if len(body) == 0 {
		return "(empty body)"
	}
	if len(body) > bodyPreviewMax {
		return string(body[:bodyPreviewMax])
	}
	return string(body)
}
