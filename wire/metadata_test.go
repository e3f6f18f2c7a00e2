package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataAbsentNullValue(t *testing.T) {
	raw := `{"timestamp": 10, "title": "Song", "artist": null}`
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, int64(10), m.TimestampUS)

	// Present value.
	title, ok := m.Title.Get()
	assert.True(t, ok)
	assert.Equal(t, "Song", title)

	// Present null: defined, not valid.
	assert.True(t, m.Artist.Defined)
	assert.False(t, m.Artist.Valid)

	// Absent entirely.
	assert.False(t, m.Album.Defined)
}

func TestMetadataMarshalElidesUndefined(t *testing.T) {
	m := Metadata{
		TimestampUS: 5,
		Title:       Some("A"),
		Artist:      Null[string](),
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Contains(t, obj, "timestamp")
	assert.Contains(t, obj, "title")
	assert.Equal(t, "null", string(obj["artist"]))
	assert.NotContains(t, obj, "album")
	assert.NotContains(t, obj, "shuffle")
}

func TestMetadataRoundTrip(t *testing.T) {
	m := Metadata{
		TimestampUS: 99,
		Title:       Some("T"),
		Year:        Some(1984),
		Progress:    Some(0.25),
		Shuffle:     Some(true),
		ArtworkURL:  Null[string](),
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var back Metadata
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m, back)
}

func TestMetadataMerge(t *testing.T) {
	base := Metadata{
		TimestampUS: 1,
		Title:       Some("Old"),
		Artist:      Some("Band"),
		Album:       Some("LP"),
	}
	update := Metadata{
		TimestampUS: 2,
		Title:       Some("New"),
		Artist:      Null[string](),
		// Album absent: untouched.
	}

	merged := base.Merge(update)
	assert.Equal(t, int64(2), merged.TimestampUS)

	title, _ := merged.Title.Get()
	assert.Equal(t, "New", title)

	assert.True(t, merged.Artist.Defined)
	assert.False(t, merged.Artist.Valid)

	album, ok := merged.Album.Get()
	assert.True(t, ok)
	assert.Equal(t, "LP", album)
}
