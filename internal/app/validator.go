package app

import (
	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/rs/zerolog/log"
)

// Validator decides whether an inbound message is processed at all.
// Rejections are silent: the peer never learns about them.
type Validator struct {
	peer    core.EndpointID
	origins map[string]struct{}
}

// NewValidator accepts messages from peer. With no origins, any origin is accepted;
// "*" in origins has the same effect.
func NewValidator(peer core.EndpointID, origins ...string) *Validator {
	v := &Validator{peer: peer}
	for _, o := range origins {
		if o == "*" {
			v.origins = nil
			break
		}
		if v.origins == nil {
			v.origins = make(map[string]struct{}, len(origins))
		}
		v.origins[o] = struct{}{}
	}
	return v
}

func (v *Validator) Peer() core.EndpointID { return v.peer }

// Accept decodes in and returns the request when it may be dispatched.
// Probes are accepted unconditionally. Anything else must come from the configured
// peer and name a method of the wire set, bound or not.
func (v *Validator) Accept(in core.Inbound) (*domain.Request, bool) {
	req, err := domain.DecodeRequest(in.Data)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.validator").Str("source", string(in.Source)).Msg("undecodable message")
		return nil, false
	}
	if req.Probe {
		return req, true
	}
	if in.Source != v.peer || !v.originAllowed(in.Origin) {
		return nil, false
	}
	if !req.Method.Known() {
		return nil, false
	}
	return req, true
}

func (v *Validator) originAllowed(origin string) bool {
	if v.origins == nil {
		return true
	}
	_, ok := v.origins[origin]
	return ok
}
