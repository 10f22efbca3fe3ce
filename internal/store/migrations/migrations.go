// Package migrations embeds the SQL schema migrations for workbook.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
