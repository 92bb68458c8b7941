package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefleet/orchestrator-agent/internal/contract"
)

func TestDispatchEchoesActionAndCorrelationID(t *testing.T) {
	d := New()
	d.Register(Topic{
		Name: "ping",
		Handler: func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"pong": true}, nil
		},
		Reply: true,
	})

	result, ok := d.Dispatch(context.Background(), "ping", map[string]interface{}{"correlation_id": float64(42)})
	require.True(t, ok)
	assert.Equal(t, "ping", result["action"])
	assert.Equal(t, float64(42), result["correlation_id"])
	assert.Equal(t, true, result["pong"])
}

func TestDispatchUnknownTopicIsDropped(t *testing.T) {
	d := New()
	result, ok := d.Dispatch(context.Background(), "nope", map[string]interface{}{})
	assert.False(t, ok)
	assert.Nil(t, result)
}

func TestDispatchFireAndForgetNeverReplies(t *testing.T) {
	called := false
	d := New()
	d.Register(Topic{
		Name: "connect",
		Handler: func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
			called = true
			return nil, nil
		},
		Reply: false,
	})

	result, ok := d.Dispatch(context.Background(), "connect", map[string]interface{}{"correlation_id": float64(1)})
	assert.True(t, called)
	assert.False(t, ok)
	assert.Nil(t, result)
}

func TestDispatchContractFailureShapesErrorReply(t *testing.T) {
	d := New()
	d.Register(Topic{
		Name:     "delete_device",
		Contract: contract.Schema{"device_id": contract.String},
		Handler: func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
			t.Fatal("handler should not run when the contract rejects the payload")
			return nil, nil
		},
		Reply: true,
	})

	result, ok := d.Dispatch(context.Background(), "delete_device", map[string]interface{}{"correlation_id": float64(7)})
	require.True(t, ok)
	assert.Equal(t, "error", result["status"])
	assert.Equal(t, "delete_device", result["action"])
	assert.Equal(t, float64(7), result["correlation_id"])
	assert.NotEmpty(t, result["error"])
}

func TestDispatchHandlerErrorBecomesErrorReply(t *testing.T) {
	d := New()
	d.Register(Topic{
		Name: "delete_device",
		Handler: func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
			return nil, errors.New("driver exploded")
		},
		Reply: true,
	})

	result, ok := d.Dispatch(context.Background(), "delete_device", map[string]interface{}{})
	require.True(t, ok)
	assert.Equal(t, "error", result["status"])
	assert.Equal(t, "driver exploded", result["error"])
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d := New()
	d.Register(Topic{
		Name: "boom",
		Handler: func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
			panic("handler fell over")
		},
		Reply: true,
	})

	result, ok := d.Dispatch(context.Background(), "boom", map[string]interface{}{})
	require.True(t, ok)
	assert.Equal(t, "error", result["status"])
	assert.Contains(t, result["error"], "boom")
}

func TestRegisterTwiceOnSameTopicPanics(t *testing.T) {
	d := New()
	d.Register(Topic{Name: "dup", Handler: func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	}})

	assert.Panics(t, func() {
		d.Register(Topic{Name: "dup", Handler: func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
			return nil, nil
		}})
	})
}
