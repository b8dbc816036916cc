package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// NewSelectBuilder returns a select builder using postgres placeholders ($1, $2, ...).
func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// Greatest renders GREATEST(a, b, ...). Postgres ignores NULL arguments.
func Greatest(exprs ...string) string {
	return fmt.Sprintf("GREATEST(%s)", strings.Join(exprs, ", "))
}

// Max renders MAX(expr).
func Max(expr string) string {
	return fmt.Sprintf("MAX(%s)", expr)
}

// ArrayAgg renders ARRAY_AGG(DISTINCT expr) FILTER (WHERE filter).
func ArrayAgg(expr, filter string) string {
	return fmt.Sprintf("ARRAY_AGG(DISTINCT %s) FILTER (WHERE %s)", expr, filter)
}

// JSONAgg renders JSON_AGG(DISTINCT jsonb_build_object(...)) FILTER (WHERE filter).
// fields alternates json key and column expression.
func JSONAgg(filter string, fields ...string) string {
	parts := make([]string, 0, len(fields))
	for i := 0; i+1 < len(fields); i += 2 {
		parts = append(parts, fmt.Sprintf("'%s', %s", fields[i], fields[i+1]))
	}
	return fmt.Sprintf("JSON_AGG(DISTINCT jsonb_build_object(%s)) FILTER (WHERE %s)", strings.Join(parts, ", "), filter)
}
