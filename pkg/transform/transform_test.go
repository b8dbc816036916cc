package transform

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whois-cat/ETL/pkg/database"
	"github.com/whois-cat/ETL/pkg/models"
)

var modified = time.Date(2021, 6, 16, 20, 14, 9, 0, time.UTC)

const (
	filmID   = "3d825f60-9fff-4dfe-b294-1a45fa1e115d"
	genreID  = "120a21cf-9097-479e-904a-13dd7198c1dd"
	personID = "26e83050-29ef-4163-a99d-b546cac208f8"
)

func validID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: true}
}

func TestTransform_FilmWorkWithoutRelationsHasEmptyCollections(t *testing.T) {
	row := &models.FilmWorkRow{
		ID:       validID(filmID),
		Title:    validID("Star Wars"),
		Type:     validID("movie"),
		Modified: modified,
	}

	doc, err := NewTransformer().Transform(row)
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	for _, field := range MultiValued[models.KindMovies] {
		assert.Equal(t, []any{}, body[field], field)
	}
	assert.Nil(t, body["description"])
	assert.Nil(t, body["imdb_rating"])
	assert.Equal(t, "Star Wars", body["title"])
}

func TestTransform_FilmWorkCarriesAggregates(t *testing.T) {
	row := &models.FilmWorkRow{
		ID:          validID(filmID),
		Title:       validID("Star Wars"),
		Description: validID("A long time ago"),
		Rating:      sql.NullFloat64{Float64: 8.6, Valid: true},
		Type:        validID("movie"),
		Genre:       pq.StringArray{"Action", "Sci-Fi"},
		ActorsNames: pq.StringArray{"Mark Hamill"},
		Actors:      database.JSONB[[]models.PersonRef]{Data: []models.PersonRef{{ID: "p-1", Name: "Mark Hamill"}}, Valid: true},
		Directors:   database.JSONB[[]models.PersonRef]{Data: []models.PersonRef{{ID: "p-2", Name: "George Lucas"}}, Valid: true},
		Modified:    modified,
	}

	doc, err := NewTransformer().Transform(row)
	require.NoError(t, err)

	film, ok := doc.(*models.FilmWorkDocument)
	require.True(t, ok)
	assert.Equal(t, filmID, film.DocumentID())
	assert.Equal(t, []string{"Action", "Sci-Fi"}, film.Genre)
	assert.Equal(t, "Mark Hamill", film.Actors[0].Name)
	assert.Equal(t, "George Lucas", film.Directors[0].Name)
	require.NotNil(t, film.ImdbRating)
	assert.InDelta(t, 8.6, *film.ImdbRating, 0.0001)
	require.NotNil(t, film.Description)
	assert.Equal(t, "A long time ago", *film.Description)
	assert.NotNil(t, film.Writers)
	assert.Empty(t, film.Writers)
	assert.NotNil(t, film.WritersNames)
}

func TestTransform_GenreAndPersonNormalization(t *testing.T) {
	tr := NewTransformer()

	doc, err := tr.Transform(&models.GenreRow{ID: validID(genreID), Name: validID("Drama"), Modified: modified})
	require.NoError(t, err)
	g := doc.(*models.GenreDocument)
	assert.NotNil(t, g.Films)
	assert.Empty(t, g.Films)
	assert.Nil(t, g.Description)

	doc, err = tr.Transform(&models.PersonRow{ID: validID(personID), FullName: validID("Carrie Fisher"), Modified: modified})
	require.NoError(t, err)
	p := doc.(*models.PersonDocument)
	assert.NotNil(t, p.Roles)
	assert.NotNil(t, p.Films)
	assert.Equal(t, "Carrie Fisher", p.FullName)
}

func TestTransform_MissingIDIsMalformed(t *testing.T) {
	tr := NewTransformer()

	rows := []models.Row{
		&models.FilmWorkRow{Title: validID("no id"), Modified: modified},
		&models.GenreRow{ID: sql.NullString{String: "", Valid: true}, Modified: modified},
		&models.PersonRow{ID: sql.NullString{String: personID, Valid: false}, Modified: modified},
	}
	for _, row := range rows {
		_, err := tr.Transform(row)
		assert.ErrorIs(t, err, ErrMalformedRow, "%T", row)
	}
}

func TestTransform_MissingTimestampIsMalformed(t *testing.T) {
	_, err := NewTransformer().Transform(&models.GenreRow{ID: validID(genreID)})
	assert.ErrorIs(t, err, ErrMalformedRow)
}

func TestTransform_NonUUIDIDIsMalformed(t *testing.T) {
	tr := NewTransformer()

	rows := []models.Row{
		&models.FilmWorkRow{ID: validID("fw-1"), Modified: modified},
		&models.GenreRow{ID: validID("120A21CF-9097-479E-904A-13DD7198C1DD"), Modified: modified},
		&models.PersonRow{ID: validID(personID + " "), Modified: modified},
	}
	for _, row := range rows {
		_, err := tr.Transform(row)
		require.ErrorIs(t, err, ErrMalformedRow, "%T", row)
		assert.Contains(t, err.Error(), "uuid", "%T", row)
	}
}

func TestTransform_NilRow(t *testing.T) {
	var row *models.GenreRow
	_, err := NewTransformer().Transform(row)
	assert.ErrorIs(t, err, ErrMalformedRow)

	_, err = NewTransformer().Transform(nil)
	assert.ErrorIs(t, err, ErrMalformedRow)
}

// valueRow implements models.Row on a value receiver.
type valueRow struct{}

func (valueRow) Kind() models.Kind       { return models.KindGenres }
func (valueRow) Key() string             { return genreID }
func (valueRow) LastModified() time.Time { return modified }

func TestTransform_ValueRowDoesNotPanic(t *testing.T) {
	var doc models.Document
	var err error
	require.NotPanics(t, func() { doc, err = NewTransformer().Transform(valueRow{}) })
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, ErrMalformedRow)
}

func TestNormalize_DeclaredFieldsExistOnEveryDocument(t *testing.T) {
	docs := map[models.Kind]any{
		models.KindMovies:  &models.FilmWorkDocument{},
		models.KindGenres:  &models.GenreDocument{},
		models.KindPersons: &models.PersonDocument{},
	}
	for _, kind := range models.Kinds {
		assert.NoError(t, Normalize(docs[kind], MultiValued[kind]), kind)
	}
}

func TestNormalize_KeepsExistingValues(t *testing.T) {
	doc := &models.PersonDocument{Roles: []string{"actor"}}
	require.NoError(t, Normalize(doc, []string{"roles", "films"}))

	assert.Equal(t, []string{"actor"}, doc.Roles)
	assert.Equal(t, []models.PersonFilmRef{}, doc.Films)
}

func TestNormalize_RejectsUnknownAndScalarFields(t *testing.T) {
	assert.Error(t, Normalize(&models.GenreDocument{}, []string{"missing"}))
	assert.Error(t, Normalize(&models.GenreDocument{}, []string{"name"}))
	assert.Error(t, Normalize(models.GenreDocument{}, []string{"films"}))
}
