package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
	sArg   string
	err    error
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunService() error            { m.called["RunService"] = true; return m.err }
func (m *mockApp) RunSync() error               { m.called["RunSync"] = true; return m.err }
func (m *mockApp) RunRender(s string) error     { m.called["RunRender"] = true; m.sArg = s; return m.err }

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Serve",
			args:           []string{"--serve", "--http-port", "9090", "--config", "/etc/blemap.yaml"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				assert.True(t, opts.Serve)
				assert.Equal(t, 9090, opts.HTTPPort)
				assert.Equal(t, "/etc/blemap.yaml", opts.ConfigFile)
			},
		},
		{
			name:           "SyncOnly",
			args:           []string{"--sync", "--state", "/tmp/state.json"},
			expectedCalled: "RunSync",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				assert.True(t, opts.Sync)
				assert.Equal(t, "/tmp/state.json", opts.StateFile)
			},
		},
		{
			name:           "SyncThenServe",
			args:           []string{"--sync", "--serve"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				assert.True(t, opts.Sync)
				assert.True(t, opts.Serve)
			},
		},
		{
			name:           "Render",
			args:           []string{"--render", "batch.json"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				assert.Equal(t, "batch.json", opts.RenderFile)
			},
		},
		{
			name:           "Defaults",
			args:           []string{},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				assert.Equal(t, "config.yaml", opts.ConfigFile)
				assert.Zero(t, opts.HTTPPort)
				assert.Empty(t, opts.StateFile)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			require.NoError(t, run(tt.args, &out, app))

			assert.True(t, app.called[tt.expectedCalled], "expected %s to be called", tt.expectedCalled)
			assert.Len(t, app.called, 1)
			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_RenderPassesPath(t *testing.T) {
	app := newMockApp()
	require.NoError(t, run([]string{"--render", "/data/webhook.json"}, &bytes.Buffer{}, app))
	assert.Equal(t, "/data/webhook.json", app.sArg)
}

func TestRun_PropagatesError(t *testing.T) {
	app := newMockApp()
	app.err = errors.New("boom")
	err := run([]string{"--sync"}, &bytes.Buffer{}, app)
	assert.EqualError(t, err, "boom")
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	require.Error(t, err)
	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Contains(t, out.String(), "Usage of blemap")
	assert.Contains(t, out.String(), "-render")
	assert.Empty(t, app.called)
}

func TestRun_UnknownFlag(t *testing.T) {
	err := run([]string{"--mqtt"}, &bytes.Buffer{}, newMockApp())
	require.Error(t, err)
}

func TestRun_ExtraArguments(t *testing.T) {
	err := run([]string{"stray"}, &bytes.Buffer{}, newMockApp())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stray")
}

func TestRun_Default(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	require.NoError(t, run([]string{}, &out, app))

	assert.True(t, strings.Contains(out.String(), "blemap version: "+Version))
	assert.Contains(t, out.String(), "blemap service starting...")
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
