package mysql

import (
	"context"
	"database/sql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TransactionManager starts transactions. *sql.DB satisfies it.
type TransactionManager interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Placeholders returns "?, ?, ..." with n markers and the values as args.
func Placeholders(values []string) (string, []interface{}) {
	marks := make([]byte, 0, len(values)*3)
	args := make([]interface{}, 0, len(values))
	for i, v := range values {
		if i > 0 {
			marks = append(marks, ", "...)
		}
		marks = append(marks, '?')
		args = append(args, v)
	}
	return string(marks), args
}

// DB is what services need when they both run transactions and issue
// single statements. *sql.DB satisfies it.
type DB interface {
	TransactionManager
	Querier
}
