// Package db carries the SQL schema applied by deploy tooling and integration tests.
package db

import "embed"

// Migrations holds the ordered schema files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
