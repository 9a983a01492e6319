// Package all registers every destination backend with the storage factory.
// Config selects which one to use, but the binary builds in support for all.
package all

import (
	_ "jaffle/internal/storage/mssql"
	_ "jaffle/internal/storage/postgres"
	_ "jaffle/internal/storage/sqlite"
)
