// Package config provides database configuration helpers for the lending
// engine's storage backends.
//
// This package contains factory functions for creating PostgreSQL
// connections using different drivers (pgx.Pool, sql.DB, sqlx.DB) and a
// helper for the SQLite database path. Values come from the environment,
// with an optional .env file loaded via godotenv.
package config
