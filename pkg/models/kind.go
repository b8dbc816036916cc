package models

import (
	"fmt"
	"time"
)

// Kind names one of the document types that flow through the pipeline.
type Kind string

const (
	KindMovies  Kind = "movies"
	KindGenres  Kind = "genres"
	KindPersons Kind = "persons"
)

// Kinds lists every kind in the order a cycle processes them.
var Kinds = []Kind{KindMovies, KindGenres, KindPersons}

func (k Kind) String() string {
	return string(k)
}

// ParseKind validates a kind name coming from the command line or a config value.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Row is one aggregated record read from the source database.
type Row interface {
	Kind() Kind
	// Key is the entity id, empty when the source returned none.
	Key() string
	// LastModified is the aggregate timestamp used as the watermark.
	LastModified() time.Time
}

// Document is an index-ready value produced from a Row.
type Document interface {
	DocumentID() string
}
