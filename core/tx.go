package core

import (
	"context"

	"github.com/pkg/errors"
)

// Transactor runs a unit of work atomically: every store write performed through ctx inside fn
// is committed when fn returns nil and rolled back otherwise.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// RetryRead runs an idempotent read, retrying it once when the store reports itself unavailable.
func RetryRead(ctx context.Context, read func(ctx context.Context) error) error {
	err := read(ctx)
	if err == nil || KindOf(err) != KindUnavailable || ctx.Err() != nil {
		return err
	}
	return errors.Wrap(read(ctx), "retrying read")
}
