package db

import (
	"strings"

	"gorm.io/gorm"
)

// CaseInsensitiveLike builds a dialect-appropriate case-insensitive
// substring condition for column against term, returning the SQL
// expression and its bind argument. Postgres has ILIKE; sqlite LIKE is
// only case-insensitive for ASCII, so both sides are lowered there.
func CaseInsensitiveLike(conn *gorm.DB, column, term string) (string, string) {
	pattern := "%" + strings.TrimSpace(term) + "%"
	if conn != nil && conn.Dialector != nil && conn.Dialector.Name() == "sqlite" {
		return "LOWER(" + column + ") LIKE ?", strings.ToLower(pattern)
	}
	return column + " ILIKE ?", pattern
}
