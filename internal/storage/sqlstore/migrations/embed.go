package migrations

import "embed"

// FS contains the embedded schema migrations shared by the SQL stores.
//
//go:embed *.sql
var FS embed.FS
