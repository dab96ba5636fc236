package publisher

import (
	"encoding/json"
)

// Result is the outcome of a publish operation.
// Success implies a non-empty Location and no ErrorMessage; a failure never
// carries a Location.
type Result struct {
	Success      bool
	Location     string
	ErrorMessage string
	// Code classifies a failure; empty on success.
	Code string
}

// Succeeded returns a successful Result for location.
func Succeeded(location string) Result {
	return Result{Success: true, Location: location}
}

// Failed returns a failed Result describing err.
func Failed(err error) Result {
	if err == nil {
		err = ErrInternal
	}
	return Result{ErrorMessage: err.Error(), Code: Classify(err)}
}

// Map returns the flat key/value form of the result:
// {isSuccess, filePath, errorMessage} with nil for absent values.
func (r Result) Map() map[string]any {
	m := map[string]any{
		"isSuccess":    r.Success,
		"filePath":     nil,
		"errorMessage": nil,
	}
	if r.Location != "" {
		m["filePath"] = r.Location
	}
	if r.ErrorMessage != "" {
		m["errorMessage"] = r.ErrorMessage
	}
	return m
}

// MarshalJSON encodes the result as its flat map.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON decodes the flat map form.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		IsSuccess    bool    `json:"isSuccess"`
		FilePath     *string `json:"filePath"`
		ErrorMessage *string `json:"errorMessage"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{Success: raw.IsSuccess}
	if raw.FilePath != nil {
		r.Location = *raw.FilePath
	}
	if raw.ErrorMessage != nil {
		r.ErrorMessage = *raw.ErrorMessage
	}
	return nil
}
