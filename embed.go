package staylinkchat

import "embed"

// MigrationsFS carries the SQL migrations so the binaries can run them
// without shipping the migrations directory alongside.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
