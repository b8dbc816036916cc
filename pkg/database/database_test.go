package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestJSONB_Scan(t *testing.T) {
	var j JSONB[[]ref]

	require.NoError(t, j.Scan([]byte(`[{"id":"1","name":"Ann"}]`)))
	assert.True(t, j.Valid)
	assert.Equal(t, []ref{{ID: "1", Name: "Ann"}}, j.Data)

	require.NoError(t, j.Scan(`[{"id":"2","name":"Bob"}]`))
	assert.Equal(t, []ref{{ID: "2", Name: "Bob"}}, j.Data)

	require.NoError(t, j.Scan(nil))
	assert.False(t, j.Valid)
	assert.Nil(t, j.Data)

	assert.Error(t, j.Scan(42))
	assert.Error(t, j.Scan([]byte(`{not json`)))
	assert.False(t, j.Valid)
}

func TestJSONB_Value(t *testing.T) {
	v, err := JSONB[[]ref]{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = JSONB[[]ref]{Data: []ref{{ID: "1", Name: "Ann"}}, Valid: true}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","name":"Ann"}]`, string(v.([]byte)))
}

func TestSQLHelpers(t *testing.T) {
	assert.Equal(t, "GREATEST(a.x, MAX(b.y))", Greatest("a.x", Max("b.y")))
	assert.Equal(t, "ARRAY_AGG(DISTINCT g.name) FILTER (WHERE g.id IS NOT NULL)", ArrayAgg("g.name", "g.id IS NOT NULL"))
	assert.Equal(t,
		"JSON_AGG(DISTINCT jsonb_build_object('id', p.id, 'name', p.full_name)) FILTER (WHERE pfw.role = 'actor')",
		JSONAgg("pfw.role = 'actor'", "id", "p.id", "name", "p.full_name"))
}

func TestNewSelectBuilder_UsesPostgresPlaceholders(t *testing.T) {
	sb := NewSelectBuilder()
	sb.Select("id").From("content.genre")
	sb.Where(sb.GreaterThan("updated_at", "2021-01-01"))
	query, args := sb.Build()

	assert.Equal(t, "SELECT id FROM content.genre WHERE updated_at > $1", query)
	assert.Equal(t, []any{"2021-01-01"}, args)
}
