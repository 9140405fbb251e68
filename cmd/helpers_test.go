package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guardian-card/guardian-core/internal/config"
	"github.com/guardian-card/guardian-core/internal/store"
)

// newTestEnv loads default config and wires services over an in-memory store.
func newTestEnv(t *testing.T) *appEnv {
	t.Helper()
	c, err := config.Load()
	require.NoError(t, err)
	c.Store.Driver = "memory"
	c.Places.Provider = "static"
	c.Places.StaticPath = ""
	c.Notify.WebhookURL = ""
	cfg = c

	env, err := buildServices(store.NewMemory())
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}
