// Package repository provides a generic repository built on Bun. Each
// repository is bound to one database.ConnectionFactory and runs every
// statement on that scope's transaction. Structured queries are expressed
// with squirrel; raw SQL uses Bun's "?" placeholders.
package repository
