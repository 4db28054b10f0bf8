// Package migrations carries the goose SQL migrations, embedded so a
// deployment brings its own schema up to date at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
