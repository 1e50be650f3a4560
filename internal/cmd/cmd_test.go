package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinceanalytics/collector/internal/version"
)

func TestVersion(t *testing.T) {
	var b bytes.Buffer
	app := Cli()
	app.Writer = &b
	require.NoError(t, app.Run(context.Background(), []string{"vince", "version"}))
	require.Contains(t, b.String(), version.VERSION)
}

func TestReplayEmpty(t *testing.T) {
	var b bytes.Buffer
	app := Cli()
	app.Writer = &b
	require.NoError(t, app.Run(context.Background(), []string{"vince", "replay", "--data", t.TempDir()}))
	require.Equal(t, "replayed 0 events\n", b.String())
}
