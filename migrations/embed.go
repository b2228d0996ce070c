// Package migrations embeds the numbered SQL migrations applied by
// `carelink-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
