// Package migrations embeds the SQL schema applied by "ckd-server migrate".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
