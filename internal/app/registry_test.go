package app

import (
	"context"
	"testing"

	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("RegisterAndGet", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(domain.MethodGetSafeInfo, func(context.Context, *Call) Result { return Handled(1) }))

		h, ok := r.Get(domain.MethodGetSafeInfo)
		require.True(t, ok)
		assert.Equal(t, 1, h(context.Background(), nil).Value())

		_, ok = r.Get(domain.MethodGetChainInfo)
		assert.False(t, ok)
	})

	t.Run("Replace", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(domain.MethodGetSafeInfo, func(context.Context, *Call) Result { return Handled("a") }))
		require.NoError(t, r.Register(domain.MethodGetSafeInfo, func(context.Context, *Call) Result { return Handled("b") }))

		h, ok := r.Get(domain.MethodGetSafeInfo)
		require.True(t, ok)
		assert.Equal(t, "b", h(context.Background(), nil).Value())
		assert.Len(t, r.Methods(), 1)
	})

	t.Run("RejectsUnknownMethod", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register("eth_sendTransaction", func(context.Context, *Call) Result { return Handled(nil) })
		assert.ErrorIs(t, err, ErrUnknownMethod)
	})

	t.Run("RejectsNilHandler", func(t *testing.T) {
		r := NewRegistry()
		assert.ErrorIs(t, r.Register(domain.MethodGetSafeInfo, nil), ErrNilHandler)
	})

	t.Run("LegacyKey", func(t *testing.T) {
		r := NewRegistry()
		assert.NoError(t, r.Register(domain.MethodGetEnvInfo, func(context.Context, *Call) Result { return Handled(nil) }))
	})

	t.Run("Unregister", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(domain.MethodGetSafeInfo, func(context.Context, *Call) Result { return Handled(nil) }))
		r.Unregister(domain.MethodGetSafeInfo)
		r.Unregister(domain.MethodGetSafeInfo)
		_, ok := r.Get(domain.MethodGetSafeInfo)
		assert.False(t, ok)
		assert.Empty(t, r.Methods())
	})
}

func TestResult(t *testing.T) {
	var zero Result
	assert.Equal(t, OutcomeHandled, zero.Outcome())
	assert.Nil(t, zero.Value())

	assert.Equal(t, OutcomeDeferred, Deferred().Outcome())
	assert.Equal(t, OutcomeFailed, From(nil, assert.AnError).Outcome())
	assert.Equal(t, assert.AnError, From(nil, assert.AnError).Err())
	assert.Equal(t, "v", From("v", nil).Value())

	assert.Equal(t, "handled", OutcomeHandled.String())
	assert.Equal(t, "deferred", OutcomeDeferred.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
}

func TestValidator(t *testing.T) {
	in := func(src core.EndpointID, origin, body string) core.Inbound {
		return core.Inbound{Source: src, Origin: origin, Data: []byte(body)}
	}

	t.Run("AcceptsPeer", func(t *testing.T) {
		v := NewValidator(testPeer)
		req, ok := v.Accept(in(testPeer, "anything", `{"id":"1","method":"getSafeInfo"}`))
		require.True(t, ok)
		assert.Equal(t, domain.MethodGetSafeInfo, req.Method)
	})

	t.Run("RejectsOtherSource", func(t *testing.T) {
		v := NewValidator(testPeer)
		_, ok := v.Accept(in("other", testOrigin, `{"id":"1","method":"getSafeInfo"}`))
		assert.False(t, ok)
	})

	t.Run("OriginAllowlist", func(t *testing.T) {
		v := NewValidator(testPeer, testOrigin)
		_, ok := v.Accept(in(testPeer, testOrigin, `{"id":"1","method":"getSafeInfo"}`))
		assert.True(t, ok)
		_, ok = v.Accept(in(testPeer, "https://evil.example", `{"id":"1","method":"getSafeInfo"}`))
		assert.False(t, ok)
	})

	t.Run("WildcardOrigin", func(t *testing.T) {
		v := NewValidator(testPeer, testOrigin, "*")
		_, ok := v.Accept(in(testPeer, "https://evil.example", `{"id":"1","method":"getSafeInfo"}`))
		assert.True(t, ok)
	})

	t.Run("RejectsUnknownMethod", func(t *testing.T) {
		v := NewValidator(testPeer)
		_, ok := v.Accept(in(testPeer, testOrigin, `{"id":"1","method":"nope"}`))
		assert.False(t, ok)
	})

	t.Run("RejectsLegacyKeyWithoutProbe", func(t *testing.T) {
		v := NewValidator(testPeer)
		_, ok := v.Accept(in(testPeer, testOrigin, `{"id":"1","method":"getEnvInfo"}`))
		assert.False(t, ok)
	})

	t.Run("ProbeFromAnywhere", func(t *testing.T) {
		v := NewValidator(testPeer, testOrigin)
		req, ok := v.Accept(in("other", "https://evil.example", `{"isCookieEnabled":true}`))
		require.True(t, ok)
		assert.True(t, req.Probe)
	})

	t.Run("RejectsGarbage", func(t *testing.T) {
		v := NewValidator(testPeer)
		_, ok := v.Accept(in(testPeer, testOrigin, `{{`))
		assert.False(t, ok)
	})
}
