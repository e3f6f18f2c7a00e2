package wire

import (
	"bytes"
	"encoding/json"
)

// Optional is a three-valued JSON field: absent, null, or a value.
// Metadata consumers merge updates field by field, and an explicit null
// clears a field while an absent field leaves it alone, so the two must
// stay distinguishable after a decode round-trip.
type Optional[T any] struct {
	// Defined is true when the field appeared in the JSON object at all.
	Defined bool
	// Valid is true when the field held a non-null value.
	Valid bool
	Value T
}

// Some wraps a concrete value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Defined: true, Valid: true, Value: v}
}

// Null is a present-but-null field, used to clear the receiver's value.
func Null[T any]() Optional[T] {
	return Optional[T]{Defined: true}
}

// Get returns the value and whether one is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// UnmarshalJSON records that the field was present and whether it was
// null. encoding/json only calls this for fields that appear.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Defined = true
	if bytes.Equal(data, []byte("null")) {
		o.Valid = false
		var zero T
		o.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// MarshalJSON emits the value, or null for a defined-but-null field.
// Undefined fields are elided by Metadata's custom marshaller; this
// method never sees them.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Metadata is the track metadata block of server/state. Every field but
// Timestamp is three-valued so partial updates can clear individual
// fields without touching the rest.
type Metadata struct {
	TimestampUS int64
	Title       Optional[string]
	Artist      Optional[string]
	Album       Optional[string]
	AlbumArtist Optional[string]
	ArtworkURL  Optional[string]
	Year        Optional[int]
	Track       Optional[int]
	Progress    Optional[float64]
	Repeat      Optional[string]
	Shuffle     Optional[bool]
}

// metadataJSON is the decode shape; encoding/json skips absent keys so
// the Optionals keep Defined=false for them.
type metadataJSON struct {
	Timestamp   int64             `json:"timestamp"`
	Title       Optional[string]  `json:"title"`
	Artist      Optional[string]  `json:"artist"`
	Album       Optional[string]  `json:"album"`
	AlbumArtist Optional[string]  `json:"album_artist"`
	ArtworkURL  Optional[string]  `json:"artwork_url"`
	Year        Optional[int]     `json:"year"`
	Track       Optional[int]     `json:"track"`
	Progress    Optional[float64] `json:"progress"`
	Repeat      Optional[string]  `json:"repeat"`
	Shuffle     Optional[bool]    `json:"shuffle"`
}

// MarshalJSON writes only defined fields, emitting null for cleared ones.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, 11)
	ts, err := json.Marshal(m.TimestampUS)
	if err != nil {
		return nil, err
	}
	out["timestamp"] = ts

	if err := putOptional(out, "title", m.Title); err != nil {
		return nil, err
	}
	if err := putOptional(out, "artist", m.Artist); err != nil {
		return nil, err
	}
	if err := putOptional(out, "album", m.Album); err != nil {
		return nil, err
	}
	if err := putOptional(out, "album_artist", m.AlbumArtist); err != nil {
		return nil, err
	}
	if err := putOptional(out, "artwork_url", m.ArtworkURL); err != nil {
		return nil, err
	}
	if err := putOptional(out, "year", m.Year); err != nil {
		return nil, err
	}
	if err := putOptional(out, "track", m.Track); err != nil {
		return nil, err
	}
	if err := putOptional(out, "progress", m.Progress); err != nil {
		return nil, err
	}
	if err := putOptional(out, "repeat", m.Repeat); err != nil {
		return nil, err
	}
	if err := putOptional(out, "shuffle", m.Shuffle); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// putOptional writes a defined field into the output object, skipping
// absent ones entirely.
func putOptional[T any](out map[string]json.RawMessage, key string, o Optional[T]) error {
	if !o.Defined {
		return nil
	}
	raw, err := o.MarshalJSON()
	if err != nil {
		return err
	}
	out[key] = raw
	return nil
}

// UnmarshalJSON decodes via the tagged shape.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var mj metadataJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	*m = Metadata{
		TimestampUS: mj.Timestamp,
		Title:       mj.Title,
		Artist:      mj.Artist,
		Album:       mj.Album,
		AlbumArtist: mj.AlbumArtist,
		ArtworkURL:  mj.ArtworkURL,
		Year:        mj.Year,
		Track:       mj.Track,
		Progress:    mj.Progress,
		Repeat:      mj.Repeat,
		Shuffle:     mj.Shuffle,
	}
	return nil
}

// Merge applies an update over m: defined fields overwrite (null clears),
// absent fields are kept. The update's timestamp always wins.
func (m Metadata) Merge(update Metadata) Metadata {
	merged := m
	merged.TimestampUS = update.TimestampUS
	mergeOpt(&merged.Title, update.Title)
	mergeOpt(&merged.Artist, update.Artist)
	mergeOpt(&merged.Album, update.Album)
	mergeOpt(&merged.AlbumArtist, update.AlbumArtist)
	mergeOpt(&merged.ArtworkURL, update.ArtworkURL)
	mergeOpt(&merged.Year, update.Year)
	mergeOpt(&merged.Track, update.Track)
	mergeOpt(&merged.Progress, update.Progress)
	mergeOpt(&merged.Repeat, update.Repeat)
	mergeOpt(&merged.Shuffle, update.Shuffle)
	return merged
}

func mergeOpt[T any](dst *Optional[T], src Optional[T]) {
	if src.Defined {
		*dst = src
	}
}
