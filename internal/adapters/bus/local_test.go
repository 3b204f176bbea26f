package bus

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/AppBridge/internal/app/orch"
	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) (*LocalApp, *orch.Orchestrator) {
	t.Helper()
	o := orch.New(orch.HostInfo{Safe: domain.SafeInfo{ChainID: 100, Owners: []string{}}}, nil, nil, orch.Options{})
	t.Cleanup(o.Close)
	l := Connect(context.Background(), New(), o, "appbridge://host", "appbridge://self")
	return l, o
}

func TestLocalApp_Call(t *testing.T) {
	l, o := newLocal(t)
	defer l.Close()

	assert.Equal(t, []core.EndpointID{l.ID()}, o.Peers())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := l.Call(ctx, domain.MethodGetEnvironmentInfo, nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "7.6.0", resp.Version)
	assert.JSONEq(t, `{"origin":"appbridge://self"}`, string(resp.Data))

	resp, err = l.Call(ctx, domain.MethodGetSafeInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestID("local-2"), resp.ID)
}

func TestLocalApp_UnansweredCallTimesOut(t *testing.T) {
	l, _ := newLocal(t)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := l.Call(ctx, domain.MethodRequestAddressBook, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalApp_CloseDetaches(t *testing.T) {
	l, o := newLocal(t)
	l.Close()

	assert.Empty(t, o.Peers())
	_, ok := o.Communicator(l.ID())
	assert.False(t, ok)
}
