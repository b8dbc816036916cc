package models

import "time"

// Position is where loading of a kind stopped: the (modified, id) key of the last loaded row.
// An empty ID covers every row at Modified, which is how a timestamp-only checkpoint reads.
type Position struct {
	Modified time.Time
	ID       string
}

func PositionOf(row Row) Position {
	return Position{Modified: row.LastModified(), ID: row.Key()}
}

// Before reports whether row sorts strictly after p in (modified, id) order.
func (p Position) Before(row Row) bool {
	modified := row.LastModified()
	if !modified.Equal(p.Modified) {
		return modified.After(p.Modified)
	}
	return p.ID != "" && row.Key() > p.ID
}
