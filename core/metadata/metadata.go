package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"

	"github.com/google/uuid"
)

const (
	Version          = "2.0.0"
	Locale           = "en-US"
	MainContentAudio = "AUDIO"
	AppID            = "Multitrack"

	AltTagTrack = "track"
	AltTagMix   = "mix"

	// MimeType of the serialized document when it is stored.
	MimeType = "application/json"
)

// Audio mime types accepted for track uploads.
const (
	AudioWAV  = "audio/wav"
	AudioMPEG = "audio/mpeg"
	AudioOGG  = "audio/ogg"
)

// browser and OS spellings of the accepted types
var audioAliases = map[string]string{
	"audio/x-wav":    AudioWAV,
	"audio/wave":     AudioWAV,
	"audio/vnd.wave": AudioWAV,
	"audio/mp3":      AudioMPEG,
	"audio/x-mpeg":   AudioMPEG,
	"audio/x-mp3":    AudioMPEG,
	"audio/mpeg3":    AudioMPEG,
	"audio/x-ogg":    AudioOGG,
	"audio/vorbis":   AudioOGG,
}

// NormalizeAudio maps an audio mime type to its canonical spelling. Media
// type parameters are dropped; unknown types come back lowercased.
func NormalizeAudio(mimeType string) string {
	t, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return mimeType
	}
	if canonical, ok := audioAliases[t]; ok {
		return canonical
	}
	return t
}

// SupportedAudio reports whether mimeType, or an alias of it, is an
// accepted audio type.
func SupportedAudio(mimeType string) bool {
	switch NormalizeAudio(mimeType) {
	case AudioWAV, AudioMPEG, AudioOGG:
		return true
	}
	return false
}

// ContentWarning flags sensitive publications.
type ContentWarning string

const (
	WarningNSFW      ContentWarning = "NSFW"
	WarningSensitive ContentWarning = "SENSITIVE"
	WarningSpoiler   ContentWarning = "SPOILER"
)

// Media is one entry of the document's media list.
type Media struct {
	Item   string `json:"item"`
	Type   string `json:"type,omitempty"`
	AltTag string `json:"altTag,omitempty"`
}

// Attribute is a display trait. The list is always empty for now.
type Attribute struct {
	DisplayType string `json:"displayType,omitempty"`
	TraitType   string `json:"traitType,omitempty"`
	Value       string `json:"value"`
}

// Document is the publication metadata stored next to the audio and
// referenced by the ledger write.
type Document struct {
	Version          string          `json:"version"`
	MetadataID       string          `json:"metadata_id"`
	Description      *string         `json:"description"`
	Locale           string          `json:"locale"`
	Tags             []string        `json:"tags"`
	ContentWarning   *ContentWarning `json:"contentWarning,omitempty"`
	MainContentFocus string          `json:"mainContentFocus"`
	Name             string          `json:"name"`
	Attributes       []Attribute     `json:"attributes"`
	Image            *string         `json:"image"`
	ImageMimeType    *string         `json:"imageMimeType"`
	Media            []Media         `json:"media"`
	AppID            string          `json:"appId"`
}

// Params are the caller-supplied parts of a Document.
type Params struct {
	Name           string
	Description    string
	Tags           []string
	ContentWarning ContentWarning
	Image          string
	ImageMimeType  string
	Media          []Media
}

var ErrMissingName = errors.New("metadata: name is required")

// Build assembles a Document with a fresh metadata id.
func Build(p Params) (*Document, error) {
	if p.Name == "" {
		return nil, ErrMissingName
	}
	for i, m := range p.Media {
		if m.Item == "" {
			return nil, fmt.Errorf("metadata: media[%d] has no item", i)
		}
	}

	doc := &Document{
		Version:          Version,
		MetadataID:       uuid.NewString(),
		Description:      optional(p.Description),
		Locale:           Locale,
		Tags:             p.Tags,
		MainContentFocus: MainContentAudio,
		Name:             p.Name,
		Attributes:       []Attribute{},
		Image:            optional(p.Image),
		ImageMimeType:    optional(p.ImageMimeType),
		Media:            p.Media,
		AppID:            AppID,
	}
	if p.ContentWarning != "" {
		w := p.ContentWarning
		doc.ContentWarning = &w
	}
	return doc, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Marshal serializes the document for upload.
func (d *Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Parse decodes a stored document.
func Parse(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("metadata: decode: %w", err)
	}
	if d.Name == "" {
		return nil, ErrMissingName
	}
	return &d, nil
}

// DescriptionText returns the description or "".
func (d *Document) DescriptionText() string {
	if d.Description == nil {
		return ""
	}
	return *d.Description
}

// MediaItems returns the media locators in order.
func (d *Document) MediaItems() []string {
	items := make([]string, 0, len(d.Media))
	for _, m := range d.Media {
		items = append(items, m.Item)
	}
	return items
}
