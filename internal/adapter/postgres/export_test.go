package postgres

import "database/sql"

// DB exposes the directory database so tests can drop what they created.
func (d *Directory) DB() *sql.DB { return d.db }
