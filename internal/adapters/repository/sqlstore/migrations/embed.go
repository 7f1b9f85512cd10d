// Package migrations embeds the room store schema.
package migrations

import "embed"

// FS contains the schema migrations, applied in file name order.
//
//go:embed *.sql
var FS embed.FS
