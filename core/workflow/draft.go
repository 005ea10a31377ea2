package workflow

import (
	"bytes"
	"io"
	"os"

	"multitrack/model"
)

// Stage is a step of the publish sequence. Stages only move forward.
type Stage int

const (
	StageIdle Stage = iota
	StageReadingFile
	StageMixing
	StageUploadingAudio
	StageGeneratingMetadata
	StageUploadingMetadata
	StageAwaitingChainWrite
	StageDone
)

var stageNames = [...]string{
	StageIdle:               "idle",
	StageReadingFile:        "reading file",
	StageMixing:             "mixing",
	StageUploadingAudio:     "uploading audio",
	StageGeneratingMetadata: "generating metadata",
	StageUploadingMetadata:  "uploading metadata",
	StageAwaitingChainWrite: "awaiting chain write",
	StageDone:               "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// MarshalText renders the stage name in JSON progress events.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Progress is an advisory status update.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// ProgressFunc receives progress updates. It must not block for long.
type ProgressFunc func(Progress)

// LocalAudio is the file the user selected. Open is called once per run so
// a failed submission can be retried from the same draft.
type LocalAudio struct {
	Name     string
	MimeType string
	Open     func() (io.ReadCloser, error)
}

// AudioFromBytes wraps an in-memory file.
func AudioFromBytes(name, mimeType string, data []byte) *LocalAudio {
	return &LocalAudio{
		Name:     name,
		MimeType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// AudioFromPath wraps a file on disk.
func AudioFromPath(path, mimeType string) *LocalAudio {
	return &LocalAudio{
		Name:     path,
		MimeType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// Draft is the user's pending submission. Parent is set for remixes.
type Draft struct {
	Audio       *LocalAudio
	Parent      *model.PublicationRecord
	Title       string
	Description string

	Progress Progress
}

// IsRemix reports whether the draft layers over an existing publication.
func (d *Draft) IsRemix() bool {
	return d.Parent != nil
}
