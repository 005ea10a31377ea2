package metadata

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var params = Params{Name: "My post name", Description: "My description"}

func TestBuild_FixedFields(t *testing.T) {
	doc, err := Build(params)
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", doc.Version)
	assert.Equal(t, "en-US", doc.Locale)
	assert.Equal(t, "AUDIO", doc.MainContentFocus)
	assert.Equal(t, "Multitrack", doc.AppID)
	assert.Equal(t, "My post name", doc.Name)
	assert.Equal(t, "My description", doc.DescriptionText())
	assert.Equal(t, []Attribute{}, doc.Attributes)

	_, err = uuid.Parse(doc.MetadataID)
	assert.NoError(t, err)
}

func TestBuild_FreshIDEachTime(t *testing.T) {
	a, err := Build(params)
	require.NoError(t, err)
	b, err := Build(params)
	require.NoError(t, err)
	assert.NotEqual(t, a.MetadataID, b.MetadataID)
}

func TestBuild_OptionalFields(t *testing.T) {
	doc, err := Build(Params{
		Name:           "x",
		Tags:           []string{"tag1", "tag2"},
		ContentWarning: WarningSpoiler,
		Image:          "www.my-site.com/image.png",
		ImageMimeType:  "image/png",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tag1", "tag2"}, doc.Tags)
	require.NotNil(t, doc.ContentWarning)
	assert.Equal(t, WarningSpoiler, *doc.ContentWarning)
	assert.Equal(t, "www.my-site.com/image.png", *doc.Image)
	assert.Equal(t, "image/png", *doc.ImageMimeType)
}

func TestBuild_RequiresName(t *testing.T) {
	_, err := Build(Params{})
	assert.ErrorIs(t, err, ErrMissingName)

	_, err = Build(Params{Name: "x", Media: []Media{{Type: AudioWAV}}})
	assert.Error(t, err)
}

// The serialized shape is what other clients of the social graph read.
func TestDocument_WireShape(t *testing.T) {
	doc, err := Build(Params{
		Name:        "Test Track",
		Description: "desc",
		Media: []Media{
			{Item: "ipfs://layer", Type: AudioWAV, AltTag: AltTagTrack},
			{Item: "ipfs://mix", Type: AudioWAV, AltTag: AltTagMix},
		},
	})
	require.NoError(t, err)
	raw, err := doc.Marshal()
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &wire))

	for _, key := range []string{"version", "metadata_id", "description", "locale", "tags", "mainContentFocus", "name", "attributes", "image", "imageMimeType", "media", "appId"} {
		assert.Contains(t, wire, key)
	}
	assert.NotContains(t, wire, "contentWarning")
	assert.Nil(t, wire["image"])
	assert.Equal(t, []interface{}{}, wire["attributes"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"item": "ipfs://layer", "type": "audio/wav", "altTag": "track"},
		map[string]interface{}{"item": "ipfs://mix", "type": "audio/wav", "altTag": "mix"},
	}, wire["media"])

	back, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"ipfs://layer", "ipfs://mix"}, back.MediaItems())
}

func TestSupportedAudio(t *testing.T) {
	assert.True(t, SupportedAudio("audio/wav"))
	assert.True(t, SupportedAudio("audio/mpeg"))
	assert.True(t, SupportedAudio("audio/ogg"))
	assert.False(t, SupportedAudio("audio/m4a"))
	assert.False(t, SupportedAudio(""))
	assert.True(t, SupportedAudio("audio/x-wav"))
	assert.True(t, SupportedAudio("audio/MP3"))
}

func TestNormalizeAudio(t *testing.T) {
	cases := map[string]string{
		"audio/wav":                AudioWAV,
		"audio/x-wav":              AudioWAV,
		"audio/wave":               AudioWAV,
		"audio/vnd.wave":           AudioWAV,
		"audio/mp3":                AudioMPEG,
		"audio/x-mpeg":             AudioMPEG,
		"audio/mpeg":               AudioMPEG,
		"audio/ogg; codecs=vorbis": AudioOGG,
		"Audio/X-WAV":              AudioWAV,
		"audio/m4a":                "audio/m4a",
		"":                         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAudio(in), in)
	}
}
