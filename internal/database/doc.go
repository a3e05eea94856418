// Package database opens the PostgreSQL pool used by the postgres
// checkpoint backend.
package database
