package launcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vr369ime/internal/bootstrap"
	"vr369ime/internal/prefs"
)

func seed(t *testing.T, backend prefs.Backend, values map[string]any) {
	t.Helper()
	b := prefs.NewBatch()
	for k, v := range values {
		require.NoError(t, b.Put(k, v))
	}
	require.NoError(t, backend.Commit(context.Background(), bootstrap.Namespace, b))
}

func TestInitDataAfterColdStart(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	seed(t, backend, map[string]any{
		bootstrap.KeyKeyboardModeFloat: false,
		bootstrap.KeyIsQuestDevice:     false,
	})

	l := New(nil)
	app, err := bootstrap.New(bootstrap.Options{Backend: backend, Launcher: l})
	require.NoError(t, err)
	require.NoError(t, app.OnCreate(context.Background()))

	require.True(t, l.Initialized())
	assert.Equal(t, State{Portrait: Floating, Landscape: Floating, Device: Quest}, l.State())
	assert.Equal(t, Floating, l.Mode(Portrait))
	assert.Equal(t, Floating, l.Mode(Landscape))
}

func TestInitDataReadsStoredValues(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	seed(t, backend, map[string]any{
		bootstrap.KeyKeyboardModeFloat:          true,
		bootstrap.KeyKeyboardModeFloatLandscape: false,
		bootstrap.KeyIsQuestDevice:              false,
	})

	l := New(nil)
	require.NoError(t, l.InitData(context.Background(), bootstrap.NewAppContext(backend, nil, "")))

	s := l.State()
	assert.Equal(t, Floating, s.Mode(Portrait))
	assert.Equal(t, Docked, s.Mode(Landscape))
	assert.Equal(t, Generic, s.Device)
}

func TestInitDataDefaultsForMissingAndMistyped(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	seed(t, backend, map[string]any{
		bootstrap.KeyKeyboardModeFloatLandscape: "docked",
	})

	l := New(nil)
	require.NoError(t, l.InitData(context.Background(), bootstrap.NewAppContext(backend, nil, "")))

	assert.Equal(t, State{Portrait: Floating, Landscape: Floating, Device: Quest}, l.State())
}

func TestInitDataOnce(t *testing.T) {
	l := New(nil)
	app := bootstrap.NewAppContext(prefs.NewMemoryBackend(), nil, "")

	require.NoError(t, l.InitData(context.Background(), app))
	assert.ErrorIs(t, l.InitData(context.Background(), app), ErrAlreadyInitialized)
}

func TestInitDataClosedBackend(t *testing.T) {
	backend := prefs.NewMemoryBackend()
	require.NoError(t, backend.Close())

	l := New(nil)
	err := l.InitData(context.Background(), bootstrap.NewAppContext(backend, nil, ""))
	assert.ErrorIs(t, err, prefs.ErrClosed)
	assert.False(t, l.Initialized())
	assert.Equal(t, State{}, l.State())
}

func TestStateFollowsCommits(t *testing.T) {
	ctx := context.Background()
	app := bootstrap.NewAppContext(prefs.NewMemoryBackend(), nil, "")

	l := New(nil)
	require.NoError(t, l.InitData(ctx, app))
	assert.Equal(t, Floating, l.Mode(Landscape))

	p, err := app.Preferences(bootstrap.Namespace)
	require.NoError(t, err)

	require.NoError(t, p.Edit().PutBool(bootstrap.KeyKeyboardModeFloatLandscape, false).Commit(ctx))
	assert.Equal(t, Docked, l.Mode(Landscape))
	assert.Equal(t, Floating, l.Mode(Portrait))

	// Unrelated keys leave the state alone.
	require.NoError(t, p.Edit().PutString("theme", "dark").Commit(ctx))
	assert.Equal(t, Docked, l.Mode(Landscape))

	// A clear falls back to the defaults.
	require.NoError(t, p.Edit().Clear().Commit(ctx))
	assert.Equal(t, State{Portrait: Floating, Landscape: Floating, Device: Quest}, l.State())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "portrait", Portrait.String())
	assert.Equal(t, "landscape", Landscape.String())
	assert.Equal(t, "docked", Docked.String())
	assert.Equal(t, "floating", Floating.String())
	assert.Equal(t, "generic", Generic.String())
	assert.Equal(t, "quest", Quest.String())
	assert.Equal(t, "Orientation(9)", Orientation(9).String())
}
