// Package migrations embeds the schema SQL used by the postgres server
// engine's golang-migrate runner (internal/store/postgres).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
