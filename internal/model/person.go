package model

import "encoding/json"

// Caps on list fields of a PersonEnrichmentResult.
const (
	MaxPhones    = 5
	MaxEmails    = 5
	MaxRelatives = 10
)

// PersonInput identifies the person or property occupant to skip trace.
type PersonInput struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Address   string `json:"address"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
}

// Phone is a contact number returned by skip tracing.
type Phone struct {
	Number    string `json:"number"`
	Type      string `json:"type,omitempty"`
	DoNotCall bool   `json:"dnc"`
}

// PersonEnrichmentResult holds contact details for one person.
type PersonEnrichmentResult struct {
	FirstName string          `json:"first_name,omitempty"`
	LastName  string          `json:"last_name,omitempty"`
	Phones    []Phone         `json:"phones"`
	Emails    []string        `json:"emails"`
	Age       *int            `json:"age,omitempty"`
	Relatives []string        `json:"relatives"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}
