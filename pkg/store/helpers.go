package store

import "github.com/jackc/pgx/v5"

var pgxNoRows = pgx.ErrNoRows

func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
