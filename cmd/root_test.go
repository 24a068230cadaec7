package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/release-tracker/internal/refresh"
)

type fakeApp struct {
	ran, refreshed, closed bool
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return nil
}

func (f *fakeApp) Refresh(context.Context) refresh.Result {
	f.refreshed = true
	return refresh.Result{RunID: "run-7"}
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

// The factory is package state, so these tests do not run in parallel.
func withFakeApp(t *testing.T, app App, err error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return app, err }
	t.Cleanup(func() { newApp = orig })
}

func TestRefreshCommandPrintsResult(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app, nil)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"refresh"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.True(t, app.refreshed)
	assert.True(t, app.closed)
	assert.Contains(t, out.String(), `"run-7"`)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app, nil)

	root := newRootCmd()
	root.SetArgs([]string{"serve"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.True(t, app.ran)
	assert.True(t, app.closed)
}

func TestBuildFailureSurfaces(t *testing.T) {
	withFakeApp(t, nil, errors.New("bad config"))

	root := newRootCmd()
	root.SetArgs([]string{"refresh"})
	root.SetErr(&bytes.Buffer{})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad config")
}
