// Package repository provides the PostgreSQL paper archive. The archive is
// optional: when the database is disabled the pipeline runs without it and
// only the file-based ledger records processed papers.
//
// Repository implementations accept the DBTX interface so they work with
// both a connection pool and a transaction:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    return repository.NewPgArchive(tx).SavePaper(ctx, record)
//	})
package repository

import (
	"github.com/ironzo/arxiveparser/internal/database"
)

// DBTX is the database interface supporting both pool and transaction
// contexts.
type DBTX = database.DBTX
