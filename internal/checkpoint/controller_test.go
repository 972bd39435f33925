package checkpoint_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/fetchward/crawlkit/internal/checkpoint"
	"github.com/fetchward/crawlkit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSeed(t *testing.T, raw string) []url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return []url.URL{*u}
}

func TestController_Run_Success(t *testing.T) {
	seed := parseSeed(t, "https://example.com/docs")
	cfg, err := config.WithDefault(seed).Build()
	require.NoError(t, err)

	controller := checkpoint.NewController(nil)
	exitCode, runErr, interrupted := controller.Run(func(ctx context.Context, cfg config.Config) (int, error) {
		return 3, nil
	}, cfg)

	assert.Equal(t, checkpoint.ExitSuccess, exitCode)
	assert.NoError(t, runErr)
	assert.False(t, interrupted)
}

func TestController_Run_FatalError(t *testing.T) {
	seed := parseSeed(t, "https://example.com/docs")
	cfg, err := config.WithDefault(seed).Build()
	require.NoError(t, err)

	controller := checkpoint.NewController(nil)
	wantErr := errors.New("pipeline exploded")
	exitCode, runErr, interrupted := controller.Run(func(ctx context.Context, cfg config.Config) (int, error) {
		return 0, wantErr
	}, cfg)

	assert.Equal(t, checkpoint.ExitFatal, exitCode)
	assert.ErrorIs(t, runErr, wantErr)
	assert.False(t, interrupted)
}

func TestController_Run_InvalidConfigError(t *testing.T) {
	seed := parseSeed(t, "https://example.com/docs")
	cfg, err := config.WithDefault(seed).Build()
	require.NoError(t, err)

	controller := checkpoint.NewController(nil)
	wantErr := fmt.Errorf("bad flag combination: %w", config.ErrInvalidConfig)
	exitCode, runErr, interrupted := controller.Run(func(ctx context.Context, cfg config.Config) (int, error) {
		return 0, wantErr
	}, cfg)

	assert.Equal(t, checkpoint.ExitInvalidInput, exitCode)
	assert.ErrorIs(t, runErr, config.ErrInvalidConfig)
	assert.False(t, interrupted)
}

// TestController_Run_PropagatesContext verifies the run closure receives
// a context it can observe for cancellation, without actually sending an
// OS signal (which would terminate the test process itself).
func TestController_Run_PropagatesContext(t *testing.T) {
	seed := parseSeed(t, "https://example.com/docs")
	cfg, err := config.WithDefault(seed).WithShutdownGracePeriod(10 * time.Millisecond).Build()
	require.NoError(t, err)

	controller := checkpoint.NewController(nil)
	exitCode, runErr, interrupted := controller.Run(func(ctx context.Context, cfg config.Config) (int, error) {
		require.NotNil(t, ctx)
		return 1, ctx.Err()
	}, cfg)

	assert.Equal(t, checkpoint.ExitSuccess, exitCode)
	assert.NoError(t, runErr)
	assert.False(t, interrupted)
}
