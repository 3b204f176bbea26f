package domain

import (
	"encoding/json"
	"fmt"
)

// Response is the envelope posted back to the peer. It marshals to exactly one of
// the success or error shapes.
type Response struct {
	ID      RequestID
	Success bool
	Version string
	Data    json.RawMessage
	Error   string
}

// NewSuccess builds a success envelope. A nil data value encodes as null.
func NewSuccess(id RequestID, data any, version string) (*Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal response data: %w", err)
	}
	return &Response{ID: id, Success: true, Version: version, Data: raw}, nil
}

// NewError builds an error envelope.
func NewError(id RequestID, message string, version string) *Response {
	return &Response{ID: id, Success: false, Version: version, Error: message}
}

type successWire struct {
	ID      RequestID       `json:"id"`
	Success bool            `json:"success"`
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type errorWire struct {
	ID      RequestID `json:"id"`
	Success bool      `json:"success"`
	Version string    `json:"version"`
	Error   string    `json:"error"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.Success {
		data := r.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return json.Marshal(successWire{ID: r.ID, Success: true, Version: r.Version, Data: data})
	}
	return json.Marshal(errorWire{ID: r.ID, Success: false, Version: r.Version, Error: r.Error})
}

func (r *Response) UnmarshalJSON(b []byte) error {
	var w struct {
		ID      RequestID       `json:"id"`
		Success bool            `json:"success"`
		Version string          `json:"version"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Response{ID: w.ID, Success: w.Success, Version: w.Version, Data: w.Data, Error: w.Error}
	return nil
}
