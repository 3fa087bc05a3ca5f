package audio_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-bridge/internal/domain"
	"voice-bridge/internal/infra/audio"
)

func TestFileSource_ConsumesFilesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002.wav"), []byte("RIFF...."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001.txt"), []byte("  turn on the porch light\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000.txt"), []byte("   "), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))

	src := audio.NewFileSource(dir, discardLogger())
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := src.NextCommand(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TextCommandPrefix+"turn on the porch light", string(first))

	second, err := src.NextCommand(ctx)
	require.NoError(t, err)
	assert.Equal(t, "RIFF....", string(second))

	assert.FileExists(t, filepath.Join(dir, "001.txt.processed"))
	assert.FileExists(t, filepath.Join(dir, "002.wav.processed"))
	assert.NoFileExists(t, filepath.Join(dir, "001.txt"))
	assert.FileExists(t, filepath.Join(dir, "notes.md"))
}

func TestFileSource_WaitsForNewFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	src := audio.NewFileSource(dir, discardLogger())
	require.NoError(t, src.Start(context.Background()))
	assert.DirExists(t, dir)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "cmd.txt"), []byte("lights off"), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, err := src.NextCommand(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TextCommandPrefix+"lights off", string(data))
}

func TestFileSource_NextCommandHonoursContext(t *testing.T) {
	src := audio.NewFileSource(t.TempDir(), discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := src.NextCommand(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
