package model

import (
	"encoding/json"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of an EnrichmentJob.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// Terminal reports whether no further transition is expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// JobKind selects which handler processes a job.
type JobKind string

const (
	JobKindProperty  JobKind = "property"
	JobKindSkipTrace JobKind = "skiptrace"
)

// Valid reports whether k is a known kind.
func (k JobKind) Valid() bool {
	return k == JobKindProperty || k == JobKindSkipTrace
}

// EnrichmentJob is one queued unit of work.
type EnrichmentJob struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	ScopeID   string          `json:"scope_id,omitempty"` // batch or event
	GroupID   string          `json:"group_id,omitempty"` // polygon or group
	Kind      JobKind         `json:"kind"`
	Address   string          `json:"address,omitempty"`
	Lat       *float64        `json:"lat,omitempty"`
	Lng       *float64        `json:"lng,omitempty"`
	Status    JobStatus       `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LookupInput converts the job's location into a resolution request.
func (j EnrichmentJob) LookupInput() LookupInput {
	return LookupInput{Address: j.Address, Lat: j.Lat, Lng: j.Lng}
}

// PersonInput splits a "street, city, ST zip" address into a skip-trace
// request. Missing parts stay empty.
func (j EnrichmentJob) PersonInput() PersonInput {
	parts := strings.Split(j.Address, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	in := PersonInput{Address: parts[0]}
	if len(parts) > 1 {
		in.City = parts[1]
	}
	if len(parts) > 2 {
		fields := strings.Fields(parts[2])
		if len(fields) > 0 {
			in.State = fields[0]
		}
		if len(fields) > 1 {
			in.Zip = fields[1]
		}
	}
	return in
}
