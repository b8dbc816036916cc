package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/whois-cat/ETL/pkg/database"
)

// PersonRef is a person embedded in a film document.
type PersonRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FilmRef is a film embedded in a genre document.
type FilmRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// PersonFilmRef is a film embedded in a person document together with the role played.
type PersonFilmRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Role  string `json:"role"`
}

// FilmWorkRow is one film work with its genres and people aggregated by role.
type FilmWorkRow struct {
	ID             sql.NullString              `db:"id" validate:"required,uuid"`
	Title          sql.NullString              `db:"title"`
	Description    sql.NullString              `db:"description"`
	Rating         sql.NullFloat64             `db:"imdb_rating"`
	Type           sql.NullString              `db:"type"`
	Genre          pq.StringArray              `db:"genre"`
	ActorsNames    pq.StringArray              `db:"actors_names"`
	WritersNames   pq.StringArray              `db:"writers_names"`
	DirectorsNames pq.StringArray              `db:"directors_names"`
	Actors         database.JSONB[[]PersonRef] `db:"actors"`
	Writers        database.JSONB[[]PersonRef] `db:"writers"`
	Directors      database.JSONB[[]PersonRef] `db:"directors"`
	Modified       time.Time                   `db:"modified" validate:"required"`
}

func (r *FilmWorkRow) Kind() Kind              { return KindMovies }
func (r *FilmWorkRow) Key() string             { return r.ID.String }
func (r *FilmWorkRow) LastModified() time.Time { return r.Modified }

// GenreRow is one genre with the films it is attached to.
type GenreRow struct {
	ID          sql.NullString            `db:"id" validate:"required,uuid"`
	Name        sql.NullString            `db:"name"`
	Description sql.NullString            `db:"description"`
	Films       database.JSONB[[]FilmRef] `db:"films"`
	Modified    time.Time                 `db:"modified" validate:"required"`
}

func (r *GenreRow) Kind() Kind              { return KindGenres }
func (r *GenreRow) Key() string             { return r.ID.String }
func (r *GenreRow) LastModified() time.Time { return r.Modified }

// PersonRow is one person with every role they played and the films they played it in.
type PersonRow struct {
	ID       sql.NullString                  `db:"id" validate:"required,uuid"`
	FullName sql.NullString                  `db:"full_name"`
	Roles    pq.StringArray                  `db:"roles"`
	Films    database.JSONB[[]PersonFilmRef] `db:"films"`
	Modified time.Time                       `db:"modified" validate:"required"`
}

func (r *PersonRow) Kind() Kind              { return KindPersons }
func (r *PersonRow) Key() string             { return r.ID.String }
func (r *PersonRow) LastModified() time.Time { return r.Modified }
