package extractor

import (
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/whois-cat/ETL/pkg/database"
	"github.com/whois-cat/ETL/pkg/models"
)

// ScanFunc decodes the current row of a result set.
type ScanFunc func(rows *sqlx.Rows) (models.Row, error)

// Query is the source side of one kind: the aggregate query and how to decode it.
// Build must order rows by (modified, id) ascending and keep only rows after since in that order.
type Query struct {
	Kind  models.Kind
	Build func(since models.Position) (string, []any)
	Scan  ScanFunc
}

// after is the keyset condition matching since.Before: a later timestamp, or the same
// timestamp and a larger id. A position without id keeps only later timestamps.
func after(sb *sqlbuilder.SelectBuilder, modified, id string, since models.Position) string {
	if since.ID == "" {
		return sb.GreaterThan(modified, since.Modified)
	}
	return sb.Or(
		sb.GreaterThan(modified, since.Modified),
		sb.And(
			sb.Equal(modified, since.Modified),
			sb.GreaterThan(id, since.ID),
		),
	)
}

// DefaultQueries returns the movies, genres and persons queries in cycle order.
func DefaultQueries() []Query {
	return []Query{MoviesQuery(), GenresQuery(), PersonsQuery()}
}

// MoviesQuery selects film works whose own row, genre links, genres,
// person links or persons changed after since.
func MoviesQuery() Query {
	modified := database.Greatest(
		"fw.updated_at",
		database.Max("gfw.created_at"),
		database.Max("g.updated_at"),
		database.Max("pfw.created_at"),
		database.Max("p.updated_at"),
	)

	build := func(since models.Position) (string, []any) {
		sb := database.NewSelectBuilder()
		sb.Select(
			"fw.id",
			"fw.title",
			"fw.description",
			sb.As("fw.rating", "imdb_rating"),
			"fw.type",
			sb.As(database.ArrayAgg("g.name", "g.id IS NOT NULL"), "genre"),
			sb.As(database.ArrayAgg("p.full_name", "pfw.role = 'actor'"), "actors_names"),
			sb.As(database.ArrayAgg("p.full_name", "pfw.role = 'writer'"), "writers_names"),
			sb.As(database.ArrayAgg("p.full_name", "pfw.role = 'director'"), "directors_names"),
			sb.As(database.JSONAgg("pfw.role = 'actor'", "id", "p.id", "name", "p.full_name"), "actors"),
			sb.As(database.JSONAgg("pfw.role = 'writer'", "id", "p.id", "name", "p.full_name"), "writers"),
			sb.As(database.JSONAgg("pfw.role = 'director'", "id", "p.id", "name", "p.full_name"), "directors"),
			sb.As(modified, "modified"),
		)
		sb.From("content.film_work fw")
		sb.JoinWithOption(sqlbuilder.LeftOuterJoin, "content.genre_film_work gfw", "gfw.film_work_id = fw.id")
		sb.JoinWithOption(sqlbuilder.LeftOuterJoin, "content.genre g", "g.id = gfw.genre_id")
		sb.JoinWithOption(sqlbuilder.LeftOuterJoin, "content.person_film_work pfw", "pfw.film_work_id = fw.id")
		sb.JoinWithOption(sqlbuilder.LeftOuterJoin, "content.person p", "p.id = pfw.person_id")
		sb.GroupBy("fw.id")
		sb.Having(after(sb, modified, "fw.id", since))
		sb.OrderBy("modified", "fw.id").Asc()
		return sb.Build()
	}

	return Query{
		Kind:  models.KindMovies,
		Build: build,
		Scan: func(rows *sqlx.Rows) (models.Row, error) {
			var row models.FilmWorkRow
			if err := rows.StructScan(&row); err != nil {
				return nil, err
			}
			return &row, nil
		},
	}
}

// GenresQuery selects genres whose own row, film links or linked films changed after since.
func GenresQuery() Query {
	modified := database.Greatest(
		"g.updated_at",
		database.Max("gfw.created_at"),
		database.Max("fw.updated_at"),
	)

	build := func(since models.Position) (string, []any) {
		sb := database.NewSelectBuilder()
		sb.Select(
			"g.id",
			"g.name",
			"g.description",
			sb.As(database.JSONAgg("fw.id IS NOT NULL", "id", "fw.id", "title", "fw.title"), "films"),
			sb.As(modified, "modified"),
		)
		sb.From("content.genre g")
		sb.JoinWithOption(sqlbuilder.LeftOuterJoin, "content.genre_film_work gfw", "gfw.genre_id = g.id")
		sb.JoinWithOption(sqlbuilder.LeftOuterJoin, "content.film_work fw", "fw.id = gfw.film_work_id")
		sb.GroupBy("g.id")
		sb.Having(after(sb, modified, "g.id", since))
		sb.OrderBy("modified", "g.id").Asc()
		return sb.Build()
	}

	return Query{
		Kind:  models.KindGenres,
		Build: build,
		Scan: func(rows *sqlx.Rows) (models.Row, error) {
			var row models.GenreRow
			if err := rows.StructScan(&row); err != nil {
				return nil, err
			}
			return &row, nil
		},
	}
}

// PersonsQuery selects persons whose own row, film links or linked films changed after since.
func PersonsQuery() Query {
	modified := database.Greatest(
		"p.updated_at",
		database.Max("pfw.created_at"),
		database.Max("fw.updated_at"),
	)

	build := func(since models.Position) (string, []any) {
		sb := database.NewSelectBuilder()
		sb.Select(
			"p.id",
			"p.full_name",
			sb.As(database.ArrayAgg("pfw.role", "pfw.role IS NOT NULL"), "roles"),
			sb.As(database.JSONAgg("fw.id IS NOT NULL", "id", "fw.id", "title", "fw.title", "role", "pfw.role"), "films"),
			sb.As(modified, "modified"),
		)
		sb.From("content.person p")
		sb.JoinWithOption(sqlbuilder.LeftOuterJoin, "content.person_film_work pfw", "pfw.person_id = p.id")
		sb.JoinWithOption(sqlbuilder.LeftOuterJoin, "content.film_work fw", "fw.id = pfw.film_work_id")
		sb.GroupBy("p.id")
		sb.Having(after(sb, modified, "p.id", since))
		sb.OrderBy("modified", "p.id").Asc()
		return sb.Build()
	}

	return Query{
		Kind:  models.KindPersons,
		Build: build,
		Scan: func(rows *sqlx.Rows) (models.Row, error) {
			var row models.PersonRow
			if err := rows.StructScan(&row); err != nil {
				return nil, err
			}
			return &row, nil
		},
	}
}
