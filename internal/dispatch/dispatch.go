// Package dispatch routes control-channel messages: a registration
// table from topic name to handler, payload validation against a
// per-topic contract, and a central wrapper that echoes the request's
// action and correlation_id onto the reply, so handlers only ever
// return the fields specific to their own response.
package dispatch

import (
	"context"
	"fmt"

	"github.com/edgefleet/orchestrator-agent/internal/contract"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// HandlerFunc processes one topic's payload and returns the
// topic-specific fields of its reply. Returning an error produces a
// generic {status:"error", error: err.Error()} reply.
type HandlerFunc func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error)

// Topic is one entry in the registration table.
type Topic struct {
	Name string

	// Contract validates payload before Handler runs. Nil skips
	// validation entirely.
	Contract contract.Schema

	Handler HandlerFunc

	// Reply controls whether Dispatch writes a response back to the
	// caller. connect/disconnect/connection_info are fire-and-forget;
	// everything else replies.
	Reply bool
}

// Dispatcher holds the topic registration table, built once at startup
// by RegisterAll and never mutated afterward.
type Dispatcher struct {
	topics map[string]Topic
}

func New() *Dispatcher {
	return &Dispatcher{topics: make(map[string]Topic)}
}

// Register adds t to the table. Registering the same name twice is a
// programming error and panics at startup.
func (d *Dispatcher) Register(t Topic) {
	if _, exists := d.topics[t.Name]; exists {
		panic(fmt.Sprintf("dispatch: topic %q registered twice", t.Name))
	}
	d.topics[t.Name] = t
}

// Dispatch looks up topic, validates payload, and runs its handler.
// The returned bool is false when nothing should be written back
// (unknown topic, or a fire-and-forget topic whose payload validated,
// whether or not its handler returned an error); when true, the map is the full reply ready to serialize.
func (d *Dispatcher) Dispatch(ctx context.Context, topicName string, payload map[string]interface{}) (map[string]interface{}, bool) {
	t, ok := d.topics[topicName]
	if !ok {
		minilog.Warn("dispatch: dropping message for unknown topic %q", topicName)
		return nil, false
	}

	correlationID := payload["correlation_id"]

	if t.Contract != nil {
		if err := contract.Validate(t.Contract, payload); err != nil {
			minilog.Error("dispatch: %s: contract validation failed: %v", topicName, err)
			return d.wrap(topicName, correlationID, map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}), true
		}
	}

	result, err := d.runHandler(ctx, t, payload)
	if err != nil {
		minilog.Error("dispatch: %s: handler error: %v", topicName, err)
		result = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}

	if !t.Reply {
		return nil, false
	}
	return d.wrap(topicName, correlationID, result), true
}

// runHandler recovers a panicking handler into a generic error reply so
// one bad handler never closes the channel.
func (d *Dispatcher) runHandler(ctx context.Context, t Topic, payload map[string]interface{}) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			minilog.Error("dispatch: %s: handler panicked: %v", t.Name, r)
			err = fmt.Errorf("internal error handling %s", t.Name)
		}
	}()
	return t.Handler(ctx, payload)
}

func (d *Dispatcher) wrap(topicName string, correlationID interface{}, result map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(result)+2)
	for k, v := range result {
		out[k] = v
	}
	out["action"] = topicName
	out["correlation_id"] = correlationID
	return out
}
