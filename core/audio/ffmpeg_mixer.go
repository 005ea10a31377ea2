package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"multitrack/logger"
)

// FFmpegMixer mixes two sources with ffmpeg's amix filter.
type FFmpegMixer struct {
	ffmpegPath string
	resolve    func(locator string) string
}

// NewFFmpegMixer creates a mixer. resolve turns a content locator into
// something ffmpeg can open, usually an HTTP gateway URL; nil leaves
// locators untouched.
func NewFFmpegMixer(ffmpegPath string, resolve func(string) string) *FFmpegMixer {
	if resolve == nil {
		resolve = func(s string) string { return s }
	}
	return &FFmpegMixer{ffmpegPath: ffmpegPath, resolve: resolve}
}

// FFmpegPath returns the ffmpeg binary in use.
func (m *FFmpegMixer) FFmpegPath() string {
	return m.ffmpegPath
}

// Combine overlays layer on base. The result is as long as the longer
// input and is encoded in the layer's format.
func (m *FFmpegMixer) Combine(ctx context.Context, layer, base Source) (*Buffer, error) {
	dir, err := os.MkdirTemp("", "multitrack-mix-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	layerIn, err := m.input(dir, "layer", layer)
	if err != nil {
		return nil, err
	}
	baseIn, err := m.input(dir, "base", base)
	if err != nil {
		return nil, err
	}

	format, mime := outputFormat(layer.MimeType)
	args := mixArgs(layerIn, baseIn, format)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Info("[Mixer] 开始混音", logger.String("layer", layer.Locator), logger.String("base", base.Locator), logger.String("format", format))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg mix failed: %w\nFFmpeg Error: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}
	return &Buffer{Data: stdout.Bytes(), MimeType: mime}, nil
}

// input returns a path or URL ffmpeg can read for src, spooling in-memory
// data to dir.
func (m *FFmpegMixer) input(dir, name string, src Source) (string, error) {
	if len(src.Data) > 0 {
		path := filepath.Join(dir, name+extension(src.MimeType))
		if err := os.WriteFile(path, src.Data, 0600); err != nil {
			return "", fmt.Errorf("spool %s: %w", name, err)
		}
		return path, nil
	}
	if src.Locator == "" {
		return "", fmt.Errorf("%s source has neither data nor locator", name)
	}
	return m.resolve(src.Locator), nil
}

func mixArgs(layer, base, format string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", layer,
		"-i", base,
		"-filter_complex", "amix=inputs=2:duration=longest",
		"-f", format,
		"pipe:1",
	}
}

func outputFormat(mime string) (format, outMime string) {
	switch mime {
	case "audio/wav":
		return "wav", "audio/wav"
	case "audio/ogg":
		return "ogg", "audio/ogg"
	default:
		return "mp3", "audio/mpeg"
	}
}

func extension(mime string) string {
	switch mime {
	case "audio/wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	}
	return ""
}
