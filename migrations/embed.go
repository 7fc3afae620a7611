// README: Embedded schema migrations (golang-migrate naming: NNNN_name.{up,down}.sql).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
