package models

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}

	_, err := ParseKind("Movies")
	assert.Error(t, err)
	_, err = ParseKind("")
	assert.Error(t, err)
}

func TestRowsReportKindKeyAndTimestamp(t *testing.T) {
	ts := time.Date(2021, 6, 16, 20, 14, 9, 0, time.UTC)
	id := sql.NullString{String: "3d825f60-9fff-4dfe-b294-1a45fa1e115d", Valid: true}

	rows := []Row{
		&FilmWorkRow{ID: id, Modified: ts},
		&GenreRow{ID: id, Modified: ts},
		&PersonRow{ID: id, Modified: ts},
	}
	for i, row := range rows {
		assert.Equal(t, Kinds[i], row.Kind())
		assert.Equal(t, id.String, row.Key())
		assert.True(t, row.LastModified().Equal(ts))
	}

	assert.Empty(t, (&GenreRow{}).Key())
}

func TestFilmWorkDocument_NullsStayInJSON(t *testing.T) {
	doc := &FilmWorkDocument{ID: "f-1", Title: "Star Quest", Genre: []string{}}
	assert.Equal(t, "f-1", doc.DocumentID())

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "imdb_rating")
	assert.Nil(t, fields["imdb_rating"])
	assert.Nil(t, fields["description"])
	assert.Equal(t, []any{}, fields["genre"])
}

func TestPosition_Before(t *testing.T) {
	ts := time.Date(2021, 6, 16, 20, 0, 0, 0, time.UTC)
	row := func(id string, at time.Time) Row {
		return &GenreRow{ID: sql.NullString{String: id, Valid: true}, Modified: at}
	}
	a := "00000000-0000-0000-0000-00000000000a"
	b := "00000000-0000-0000-0000-00000000000b"

	pos := PositionOf(row(a, ts))
	assert.Equal(t, Position{Modified: ts, ID: a}, pos)

	assert.False(t, pos.Before(row(a, ts)))
	assert.True(t, pos.Before(row(b, ts)), "same timestamp, larger id")
	assert.False(t, pos.Before(row("00000000-0000-0000-0000-000000000001", ts)))
	assert.True(t, pos.Before(row(a, ts.Add(time.Microsecond))))
	assert.False(t, pos.Before(row(b, ts.Add(-time.Microsecond))))

	timestampOnly := Position{Modified: ts}
	assert.False(t, timestampOnly.Before(row(b, ts)), "no id covers the whole timestamp")
	assert.True(t, timestampOnly.Before(row(a, ts.Add(time.Microsecond))))
}
