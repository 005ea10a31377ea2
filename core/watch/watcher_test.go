package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestWatcher_HandlesSettledAudioOnce(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New(dir, []string{".wav", ".mp3"}, 50*time.Millisecond, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	// let the watcher register
	time.Sleep(50 * time.Millisecond)

	wav := filepath.Join(dir, "Drums.WAV")
	f, err := os.Create(wav)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.Write([]byte("RIFF"))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// later writes to a handled file are ignored
	require.NoError(t, os.WriteFile(wav, []byte("RIFF-again"), 0o644))
	time.Sleep(150 * time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{wav}, rec.seen())
}

func TestWatcher_CancelBeforeSettle(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New(dir, []string{".wav"}, time.Hour, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.wav"), []byte("RIFF"), 0o644))
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, rec.seen())
}
