// Package transform turns aggregated source rows into index documents.
package transform

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/whois-cat/ETL/pkg/models"
)

// ErrMalformedRow is returned for rows that cannot become a document, e.g. a row without an id.
var ErrMalformedRow = errors.New("malformed row")

// MultiValued lists, per kind, the json names of document fields that must never be null.
var MultiValued = map[models.Kind][]string{
	models.KindMovies:  {"genre", "actors_names", "writers_names", "directors_names", "actors", "writers", "directors"},
	models.KindGenres:  {"films"},
	models.KindPersons: {"roles", "films"},
}

type Transformer struct {
	validate *validator.Validate
}

func NewTransformer() *Transformer {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(nullValue, sql.NullString{}, sql.NullFloat64{})
	return &Transformer{validate: v}
}

// nullValue lets `required` treat an invalid sql.Null* as missing.
func nullValue(field reflect.Value) any {
	if valuer, ok := field.Interface().(driver.Valuer); ok {
		val, err := valuer.Value()
		if err == nil {
			return val
		}
	}
	return nil
}

// Transform validates row and builds its document with every multi-valued field non-nil.
func (t *Transformer) Transform(row models.Row) (models.Document, error) {
	if v := reflect.ValueOf(row); row == nil || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil, fmt.Errorf("%w: nil row", ErrMalformedRow)
	}
	if err := t.validate.Struct(row); err != nil {
		return nil, fmt.Errorf("%w: %s row %q: %s", ErrMalformedRow, row.Kind(), row.Key(), describe(err))
	}

	var doc models.Document
	switch r := row.(type) {
	case *models.FilmWorkRow:
		doc = filmWork(r)
	case *models.GenreRow:
		doc = genre(r)
	case *models.PersonRow:
		doc = person(r)
	default:
		return nil, fmt.Errorf("%w: unsupported row type %T", ErrMalformedRow, row)
	}

	if err := Normalize(doc, MultiValued[row.Kind()]); err != nil {
		return nil, err
	}
	return doc, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

func filmWork(r *models.FilmWorkRow) *models.FilmWorkDocument {
	doc := &models.FilmWorkDocument{
		ID:             r.ID.String,
		Title:          r.Title.String,
		Type:           r.Type.String,
		Genre:          r.Genre,
		ActorsNames:    r.ActorsNames,
		WritersNames:   r.WritersNames,
		DirectorsNames: r.DirectorsNames,
		Actors:         r.Actors.Data,
		Writers:        r.Writers.Data,
		Directors:      r.Directors.Data,
	}
	if r.Description.Valid {
		doc.Description = &r.Description.String
	}
	if r.Rating.Valid {
		doc.ImdbRating = &r.Rating.Float64
	}
	return doc
}

func genre(r *models.GenreRow) *models.GenreDocument {
	doc := &models.GenreDocument{
		ID:    r.ID.String,
		Name:  r.Name.String,
		Films: r.Films.Data,
	}
	if r.Description.Valid {
		doc.Description = &r.Description.String
	}
	return doc
}

func person(r *models.PersonRow) *models.PersonDocument {
	return &models.PersonDocument{
		ID:       r.ID.String,
		FullName: r.FullName.String,
		Roles:    r.Roles,
		Films:    r.Films.Data,
	}
}

// Normalize replaces nil slices named in fields (by json name) with empty ones.
// doc must be a pointer to a struct; naming a field the struct lacks is an error.
func Normalize(doc any, fields []string) error {
	v := reflect.ValueOf(doc)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("normalize: expected pointer to struct, got %T", doc)
	}
	v = v.Elem()

	index := make(map[string]int, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		name, _, _ := strings.Cut(v.Type().Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			index[name] = i
		}
	}

	for _, name := range fields {
		i, ok := index[name]
		if !ok {
			return fmt.Errorf("normalize: %T has no field %q", doc, name)
		}
		f := v.Field(i)
		if f.Kind() != reflect.Slice {
			return fmt.Errorf("normalize: field %q of %T is not a slice", name, doc)
		}
		if f.IsNil() {
			f.Set(reflect.MakeSlice(f.Type(), 0, 0))
		}
	}
	return nil
}
