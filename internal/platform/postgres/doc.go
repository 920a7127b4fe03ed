// Package postgres implements the store interfaces over PostgreSQL through
// database/sql and the pgx driver. Job claims lease rows with
// FOR UPDATE SKIP LOCKED, and the schema ships as embedded goose migrations.
package postgres
