package models

// FilmWorkDocument is stored in the movies index.
type FilmWorkDocument struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    *string     `json:"description"`
	ImdbRating     *float64    `json:"imdb_rating"`
	Type           string      `json:"type"`
	Genre          []string    `json:"genre"`
	ActorsNames    []string    `json:"actors_names"`
	WritersNames   []string    `json:"writers_names"`
	DirectorsNames []string    `json:"directors_names"`
	Actors         []PersonRef `json:"actors"`
	Writers        []PersonRef `json:"writers"`
	Directors      []PersonRef `json:"directors"`
}

func (d *FilmWorkDocument) DocumentID() string { return d.ID }

// GenreDocument is stored in the genres index.
type GenreDocument struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Films       []FilmRef `json:"films"`
}

func (d *GenreDocument) DocumentID() string { return d.ID }

// PersonDocument is stored in the persons index.
type PersonDocument struct {
	ID       string          `json:"id"`
	FullName string          `json:"full_name"`
	Roles    []string        `json:"roles"`
	Films    []PersonFilmRef `json:"films"`
}

func (d *PersonDocument) DocumentID() string { return d.ID }
