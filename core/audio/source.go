package audio

import "context"

// Source is one input to a mix: either in-memory bytes or a locator that
// can be fetched. Data wins when both are set.
type Source struct {
	Locator  string
	Data     []byte
	MimeType string
}

// Buffer is a mixed-down result.
type Buffer struct {
	Data     []byte
	MimeType string
}

// Mixer combines a new layer with the accumulated mix it is layered over.
type Mixer interface {
	Combine(ctx context.Context, layer, base Source) (*Buffer, error)
}
