package cmd

import (
	"bytes"
	"testing"

	"multitrack/core/tree"
	"multitrack/model"

	"github.com/stretchr/testify/assert"
)

func TestPrintForest(t *testing.T) {
	f := tree.Build([]model.PublicationRecord{
		{ID: "0xa-0x01", Kind: model.KindOriginal, Title: "Drums"},
		{ID: "0xa-0x02", Kind: model.KindRemix, ParentID: "0xa-0x01", Title: "Bass"},
		{ID: "0xa-0x03", Kind: model.KindRemix, ParentID: "0xa-0x09", Title: "Lost"},
	})
	var out bytes.Buffer
	printForest(&out, f)
	assert.Equal(t, "0xa-0x01  Drums\n  0xa-0x02  Bass\norphan 0xa-0x03 (parent 0xa-0x09 not found)\n", out.String())

	out.Reset()
	printForest(&out, tree.Build(nil))
	assert.Equal(t, "No tracks yet\n", out.String())
}

func TestTrackNameAndType(t *testing.T) {
	assert.Equal(t, "Drum Loop", trackName("/drops/Drum Loop.wav"))
	assert.Equal(t, "audio/wav", audioType("x.WAV"))
	assert.Equal(t, "audio/mpeg", audioType("x.mp3"))
	assert.Equal(t, "audio/ogg", audioType("x.ogg"))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"server", "tracks", "publish", "watch", "collect", "token", "blobs", "redis"} {
		assert.True(t, names[want], want)
	}
}
