// Package dummydb is an in-memory implementation of every repository, used by tests and local development.
//
// Transactions are serialised by a single lock; a failed transaction restores every table
// to the snapshot taken when it began.
package dummydb

import (
	"context"
	"sync"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/certificate"
	"github.com/eventsoft/eventsoft/core/criterion"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/instrument"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/notification"
	"github.com/eventsoft/eventsoft/core/site"
	"github.com/eventsoft/eventsoft/core/user"
)

type (
	table[K comparable, V any] struct {
		sync.RWMutex
		rows map[K]V
	}

	snapshotter interface {
		// snapshot copies the table and returns the function restoring the copy.
		snapshot() func()
	}

	DB struct {
		txMu sync.Mutex

		users        *table[string, user.User]
		profiles     *table[string, user.Profile]
		events       *table[string, event.Event]
		memories     *table[string, event.Memory]
		enrollments  *table[string, enrollment.Enrollment]
		criteria     *table[string, criterion.Criterion]
		grades       *table[string, criterion.Grade]
		dispatches   *table[string, notification.Dispatch]
		deliveries   *table[string, notification.Delivery] // {dispatchID/userID: Delivery}
		inbox        *table[string, notification.InboxItem]
		certConfigs  *table[string, certificate.Config] // {eventID: Config}
		certificates *table[string, certificate.Certificate]
		instruments  *table[string, instrument.Instrument] // {eventID/version: Instrument}
		codes        *table[string, invitation.Code]
		site         *table[string, site.Site] // single row
		audit        *table[string, audit.Entry]
	}

	txKey struct{}
)

var _ core.Transactor = (*DB)(nil)

func newTable[K comparable, V any]() *table[K, V] {
	return &table[K, V]{rows: make(map[K]V)}
}

func (t *table[K, V]) snapshot() func() {
	t.RLock()
	cp := make(map[K]V, len(t.rows))
	for k, v := range t.rows {
		cp[k] = v
	}
	t.RUnlock()

	return func() {
		t.Lock()
		t.rows = cp
		t.Unlock()
	}
}

func (t *table[K, V]) get(k K) (V, bool) {
	t.RLock()
	defer t.RUnlock()
	v, ok := t.rows[k]
	return v, ok
}

func (t *table[K, V]) put(k K, v V) {
	t.Lock()
	defer t.Unlock()
	t.rows[k] = v
}

func (t *table[K, V]) del(k K) {
	t.Lock()
	defer t.Unlock()
	delete(t.rows, k)
}

// filter returns a copy of the rows matching keep, in no particular order.
func (t *table[K, V]) filter(keep func(V) bool) []V {
	t.RLock()
	defer t.RUnlock()
	res := make([]V, 0, len(t.rows))
	for _, v := range t.rows {
		if keep == nil || keep(v) {
			res = append(res, v)
		}
	}
	return res
}

func Open() (*DB, error) {
	db := &DB{
		users:        newTable[string, user.User](),
		profiles:     newTable[string, user.Profile](),
		events:       newTable[string, event.Event](),
		memories:     newTable[string, event.Memory](),
		enrollments:  newTable[string, enrollment.Enrollment](),
		criteria:     newTable[string, criterion.Criterion](),
		grades:       newTable[string, criterion.Grade](),
		dispatches:   newTable[string, notification.Dispatch](),
		deliveries:   newTable[string, notification.Delivery](),
		inbox:        newTable[string, notification.InboxItem](),
		certConfigs:  newTable[string, certificate.Config](),
		certificates: newTable[string, certificate.Certificate](),
		instruments:  newTable[string, instrument.Instrument](),
		codes:        newTable[string, invitation.Code](),
		site:         newTable[string, site.Site](),
		audit:        newTable[string, audit.Entry](),
	}
	return db, nil
}

func (db *DB) tables() []snapshotter {
	return []snapshotter{
		db.users, db.profiles, db.events, db.memories, db.enrollments, db.criteria, db.grades, db.dispatches,
		db.deliveries, db.inbox, db.certConfigs, db.certificates, db.instruments, db.codes, db.site, db.audit,
	}
}

// RunInTx runs fn as a single unit of work. Nested calls join the surrounding transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx, _ := ctx.Value(txKey{}).(bool); inTx {
		return fn(ctx)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	tables := db.tables()
	restores := make([]func(), len(tables))
	for i, t := range tables {
		restores[i] = t.snapshot()
	}
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}
