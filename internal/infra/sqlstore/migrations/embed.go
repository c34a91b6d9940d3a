package migrations

import "embed"

// FS contains the schema migrations shared by the SQLite and Postgres stores.
//
//go:embed *.sql
var FS embed.FS
