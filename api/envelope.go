package api

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Envelope is the response wrapper used by every CampusLink endpoint.
// Empty (204) responses are normalized into a success envelope so callers
// never branch on body emptiness.
type Envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Results *int            `json:"results,omitempty"`
}

func successEnvelope() *Envelope {
	return &Envelope{Status: statusSuccess}
}

// Decode unmarshals the envelope's data payload into v. An envelope with no
// data decodes nothing, which lets mutation call sites treat bare success
// responses and payload-carrying responses uniformly.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return errors.Wrap(err, "[Envelope.Decode] unmarshal data")
	}
	return nil
}

// HasData reports whether the server returned an authoritative payload.
// Mutation reconciliation keeps the optimistic prediction when it is false.
func (e *Envelope) HasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}
