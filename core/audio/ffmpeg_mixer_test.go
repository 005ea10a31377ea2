package audio

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMixArgs_LayerFirst(t *testing.T) {
	args := mixArgs("/tmp/layer.wav", "http://gw/ipfs/base", "wav")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i /tmp/layer.wav -i http://gw/ipfs/base")
	assert.Contains(t, joined, "amix=inputs=2:duration=longest")
	assert.Equal(t, "pipe:1", args[len(args)-1])
}

func TestOutputFormat(t *testing.T) {
	f, m := outputFormat("audio/wav")
	assert.Equal(t, "wav", f)
	assert.Equal(t, "audio/wav", m)

	f, m = outputFormat("audio/ogg")
	assert.Equal(t, "ogg", f)
	assert.Equal(t, "audio/ogg", m)

	f, m = outputFormat("audio/mpeg")
	assert.Equal(t, "mp3", f)
	assert.Equal(t, "audio/mpeg", m)
}

func TestInput_SpoolsDataAndResolvesLocators(t *testing.T) {
	m := NewFFmpegMixer("ffmpeg", func(loc string) string {
		return strings.Replace(loc, "ipfs://", "http://gw/ipfs/", 1)
	})
	dir := t.TempDir()

	path, err := m.input(dir, "layer", Source{Data: []byte("RIFF"), MimeType: "audio/wav"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "layer.wav"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(raw))

	url, err := m.input(dir, "base", Source{Locator: "ipfs://abc"})
	require.NoError(t, err)
	assert.Equal(t, "http://gw/ipfs/abc", url)

	_, err = m.input(dir, "base", Source{})
	assert.Error(t, err)
}

func TestCombine_MissingBinary(t *testing.T) {
	m := NewFFmpegMixer("/nonexistent/ffmpeg", nil)
	_, err := m.Combine(context.Background(),
		Source{Data: []byte("x"), MimeType: "audio/wav"},
		Source{Locator: "/tmp/base.wav"})
	assert.Error(t, err)
}
