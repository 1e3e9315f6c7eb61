// Package sqlxrepos implements every repository on PostgreSQL through sqlx.
//
// A transaction opened by RunInTx travels in the context; repositories run their
// statements on it when present and on the pool otherwise.
package sqlxrepos

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"net"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eventsoft/eventsoft/core"
)

type (
	DB struct {
		*sqlx.DB
	}

	txKey struct{}
)

var _ core.Transactor = (*DB)(nil)

func New(db *sqlx.DB) *DB {
	return &DB{DB: db}
}

// RunInTx runs fn in a database transaction. Nested calls join the surrounding transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return trapConnErr(errors.Wrap(err, "beginning transaction"))
	}
	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return trapConnErr(errors.Wrap(tx.Commit(), "committing transaction"))
}

// exec returns the transaction carried by ctx, or the pool.
func (db *DB) exec(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.DB
}

func (db *DB) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ex := db.exec(ctx)
	return trapConnErr(sqlx.GetContext(ctx, ex, dest, ex.Rebind(query), args...))
}

func (db *DB) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ex := db.exec(ctx)
	return trapConnErr(sqlx.SelectContext(ctx, ex, dest, ex.Rebind(query), args...))
}

// execOne runs a write and reports whether it touched a row.
func (db *DB) execOne(ctx context.Context, query string, args ...interface{}) (bool, error) {
	ex := db.exec(ctx)
	res, err := ex.ExecContext(ctx, ex.Rebind(query), args...)
	if err != nil {
		return false, trapConnErr(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) namedExec(ctx context.Context, query string, arg interface{}) (bool, error) {
	res, err := sqlx.NamedExecContext(ctx, db.exec(ctx), query, arg)
	if err != nil {
		return false, trapConnErr(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// pqErr returns the postgres error behind err, if any.
func pqErr(err error) (*pq.Error, bool) {
	pe, ok := errors.Cause(err).(*pq.Error)
	return pe, ok
}

func isUniqueViolation(err error, constraint string) bool {
	pe, ok := pqErr(err)
	return ok && pe.Code == "23505" && (constraint == "" || pe.Constraint == constraint)
}

func isFKViolation(err error, constraint string) bool {
	pe, ok := pqErr(err)
	return ok && pe.Code == "23503" && pe.Constraint == constraint
}

// trapConnErr marks connection failures as Unavailable so that reads can be retried.
func trapConnErr(err error) error {
	if err == nil {
		return nil
	}
	cause := errors.Cause(err)
	if cause == driver.ErrBadConn {
		return core.Unavailable(err)
	}
	if _, ok := cause.(net.Error); ok {
		return core.Unavailable(err)
	}
	if pe, ok := cause.(*pq.Error); ok && strings.HasPrefix(string(pe.Code), "08") { // connection exception
		return core.Unavailable(err)
	}
	return err
}

// where accumulates AND-ed conditions with bindvar placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// toJSON encodes v for a jsonb column. It is sent as text since lib/pq would send []byte as bytea.
func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	return string(b), errors.Wrap(err, "encoding json column")
}

// fromJSON decodes a nullable jsonb column into dest; NULL leaves dest untouched.
func fromJSON(col null.JSON, dest interface{}) error {
	if !col.Valid || len(col.JSON) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(col.JSON, dest), "decoding json column")
}
