package selfid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	resolveByName func(ctx context.Context, name string) (string, error)
	resolveByLabel func(ctx context.Context, label, value string) (string, bool, error)
}

func (f *fakeDriver) ResolveSelfByName(ctx context.Context, name string) (string, error) {
	return f.resolveByName(ctx, name)
}

func (f *fakeDriver) ResolveByLabel(ctx context.Context, label, value string) (string, bool, error) {
	return f.resolveByLabel(ctx, label, value)
}

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDetectPrefersHostnameEnv(t *testing.T) {
	driver := &fakeDriver{
		resolveByName: func(ctx context.Context, name string) (string, error) {
			if name == "abc123" {
				return "fullid-abc123", nil
			}
			return "", errors.New("not found")
		},
		resolveByLabel: func(ctx context.Context, label, value string) (string, bool, error) {
			t.Fatal("label search should not run when $HOSTNAME resolves")
			return "", false, nil
		},
	}

	id, ok := Detect(context.Background(), driver, Overrides{
		LookupEnv: envLookup(map[string]string{"HOSTNAME": "abc123"}),
		Hostname:  func() (string, error) { return "", errors.New("unused") },
	})
	require.True(t, ok)
	assert.Equal(t, "fullid-abc123", id)
}

func TestDetectFallsBackToKernelHostname(t *testing.T) {
	driver := &fakeDriver{
		resolveByName: func(ctx context.Context, name string) (string, error) {
			if name == "kernel-host" {
				return "fullid-kernel", nil
			}
			return "", errors.New("not found")
		},
		resolveByLabel: func(ctx context.Context, label, value string) (string, bool, error) {
			t.Fatal("label search should not run when kernel hostname resolves")
			return "", false, nil
		},
	}

	id, ok := Detect(context.Background(), driver, Overrides{
		LookupEnv: envLookup(map[string]string{}),
		Hostname:  func() (string, error) { return "kernel-host", nil },
	})
	require.True(t, ok)
	assert.Equal(t, "fullid-kernel", id)
}

func TestDetectFallsBackToHostNameOverride(t *testing.T) {
	driver := &fakeDriver{
		resolveByName: func(ctx context.Context, name string) (string, error) {
			if name == "override-name" {
				return "fullid-override", nil
			}
			return "", errors.New("not found")
		},
		resolveByLabel: func(ctx context.Context, label, value string) (string, bool, error) {
			t.Fatal("label search should not run when HOST_NAME override resolves")
			return "", false, nil
		},
	}

	id, ok := Detect(context.Background(), driver, Overrides{
		LookupEnv: envLookup(map[string]string{"HOST_NAME": "override-name"}),
		Hostname:  func() (string, error) { return "", errors.New("no hostname") },
	})
	require.True(t, ok)
	assert.Equal(t, "fullid-override", id)
}

func TestDetectFallsBackToLabelSearch(t *testing.T) {
	driver := &fakeDriver{
		resolveByName: func(ctx context.Context, name string) (string, error) {
			return "", errors.New("not found")
		},
		resolveByLabel: func(ctx context.Context, label, value string) (string, bool, error) {
			assert.Equal(t, LabelKey, label)
			assert.Equal(t, LabelValue, value)
			return "fullid-by-label", true, nil
		},
	}

	id, ok := Detect(context.Background(), driver, Overrides{
		LookupEnv: envLookup(map[string]string{}),
		Hostname:  func() (string, error) { return "", errors.New("no hostname") },
	})
	require.True(t, ok)
	assert.Equal(t, "fullid-by-label", id)
}

func TestDetectReturnsFalseWhenEverythingFails(t *testing.T) {
	driver := &fakeDriver{
		resolveByName: func(ctx context.Context, name string) (string, error) {
			return "", errors.New("not found")
		},
		resolveByLabel: func(ctx context.Context, label, value string) (string, bool, error) {
			return "", false, nil
		},
	}

	_, ok := Detect(context.Background(), driver, Overrides{
		LookupEnv: envLookup(map[string]string{}),
		Hostname:  func() (string, error) { return "", errors.New("no hostname") },
	})
	assert.False(t, ok)
}
