// Package migrations embeds the schema for the ros2_commands table.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
