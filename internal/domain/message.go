package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is stamped on every outbound response.
const ProtocolVersion = "7.6.0"

// ProbeField marks a legacy capability-check payload.
const ProbeField = "isCookieEnabled"

var ErrMalformedRequest = errors.New("malformed request")

// RequestID is an opaque, sender-chosen correlation token.
type RequestID string

// Request is a decoded inbound call.
type Request struct {
	ID RequestID
	// Method is the dispatch key. Empty when the wire method is outside the method set
	// and the message is not a probe.
	Method Method
	// WireMethod is the method string exactly as received.
	WireMethod string
	Params     json.RawMessage
	Probe      bool
}

// DecodeRequest parses an inbound body. Probes without a recognised method resolve
// to MethodGetEnvInfo.
func DecodeRequest(data []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if fields == nil {
		return nil, ErrMalformedRequest
	}

	req := &Request{Params: fields["params"]}
	_, req.Probe = fields[ProbeField]

	if raw, ok := fields["id"]; ok && !isNull(raw) {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("%w: id: %v", ErrMalformedRequest, err)
		}
		req.ID = RequestID(id)
	}
	if raw, ok := fields["method"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &req.WireMethod); err != nil {
			return nil, fmt.Errorf("%w: method: %v", ErrMalformedRequest, err)
		}
	}

	if m, ok := ParseMethod(req.WireMethod); ok {
		req.Method = m
	} else if req.Probe {
		req.Method = MethodGetEnvInfo
	}
	return req, nil
}

// Bind decodes the request params into v.
func (r *Request) Bind(v any) error {
	if len(r.Params) == 0 || isNull(r.Params) {
		return fmt.Errorf("%s: missing params", r.WireMethod)
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return fmt.Errorf("%s: invalid params: %w", r.WireMethod, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
