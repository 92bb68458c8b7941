// Package selfid resolves the agent's own container identity, needed to
// attach the agent to each runtime's internal network at create time.
// Try $HOSTNAME, then the kernel hostname, then an
// operator-supplied $HOST_NAME override, and finally a label search, each
// step only advancing if the container daemon can't resolve the
// candidate to a real container.
package selfid

import (
	"context"
	"os"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

const (
	// EnvHostname is the container runtime's default hostname injection,
	// normally the short container id.
	EnvHostname = "HOSTNAME"

	// EnvHostNameOverride lets an operator pin the agent's own identity
	// when HOSTNAME doesn't resolve (e.g. a custom --hostname or a pod
	// network namespace shared with a sidecar).
	EnvHostNameOverride = "HOST_NAME"

	// LabelKey/LabelValue identify the agent's own container when every
	// hostname-based candidate fails; the deploy tooling applies this
	// label to the agent's container.
	LabelKey   = "edge.autonomy.role"
	LabelValue = "orchestrator-agent"
)

// resolveTimeout bounds each fallback step's daemon round trip so a
// hung daemon can't wedge startup.
const resolveTimeout = 5 * time.Second

// Driver is the subset of container.Driver selfid needs, kept narrow so
// tests can substitute a fake without depending on the docker client.
type Driver interface {
	ResolveSelfByName(ctx context.Context, name string) (string, error)
	ResolveByLabel(ctx context.Context, label, value string) (string, bool, error)
}

// Overrides lets tests substitute the environment and hostname lookups
// without touching process-global state.
type Overrides struct {
	LookupEnv func(string) (string, bool)
	Hostname  func() (string, error)
}

// Detect walks the fallback chain once and returns an identifier
// (container id or name) the daemon can resolve, or false if every step
// failed.
func Detect(ctx context.Context, driver Driver, ov Overrides) (string, bool) {
	lookupEnv := os.LookupEnv
	if ov.LookupEnv != nil {
		lookupEnv = ov.LookupEnv
	}
	hostname := os.Hostname
	if ov.Hostname != nil {
		hostname = ov.Hostname
	}

	if v, ok := lookupEnv(EnvHostname); ok && v != "" {
		if id, ok := tryResolve(ctx, driver, v); ok {
			minilog.Debug("selfid: resolved self via $%s=%s", EnvHostname, v)
			return id, true
		}
	}

	if h, err := hostname(); err == nil && h != "" {
		if id, ok := tryResolve(ctx, driver, h); ok {
			minilog.Debug("selfid: resolved self via kernel hostname %s", h)
			return id, true
		}
	}

	if v, ok := lookupEnv(EnvHostNameOverride); ok && v != "" {
		if id, ok := tryResolve(ctx, driver, v); ok {
			minilog.Debug("selfid: resolved self via $%s=%s", EnvHostNameOverride, v)
			return id, true
		}
	}

	id, ok, err := driver.ResolveByLabel(ctx, LabelKey, LabelValue)
	if err != nil {
		minilog.Warn("selfid: label search for %s=%s failed: %v", LabelKey, LabelValue, err)
		return "", false
	}
	if !ok {
		minilog.Warn("selfid: could not resolve own container by hostname or label %s=%s", LabelKey, LabelValue)
		return "", false
	}
	minilog.Debug("selfid: resolved self via label %s=%s", LabelKey, LabelValue)
	return id, true
}

func tryResolve(ctx context.Context, driver Driver, candidate string) (string, bool) {
	id, err := driver.ResolveSelfByName(ctx, candidate)
	if err != nil {
		return "", false
	}
	return id, true
}

// New returns a closure matching runtime.Manager's SelfName field,
// bound to driver with a short per-call timeout. The returned name has
// already been validated against the daemon, so runtime.Manager's own
// subsequent ResolveSelfByName call just re-confirms it still exists.
func New(driver Driver) func() (string, bool) {
	return func() (string, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()
		return Detect(ctx, driver, Overrides{})
	}
}
