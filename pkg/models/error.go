package models

import "encoding/json"

type ErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func CreateError(msg string) []byte {
	return CreateErrorWithDetails(msg, "")
}

// CreateErrorWithDetails adds a diagnostic string. Callers must only pass a
// non-empty details value outside production.
func CreateErrorWithDetails(msg, details string) []byte {
	err, _ := json.Marshal(ErrorPayload{
		Error:   msg,
		Details: details,
	})
	return err
}
