package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/notification"
)

const (
	dispatchColumns = `id, event_id, issuer_id, audience, specialty, channel, title, content,
	target_count, succeeded, failed, created_at, updated_at`
	deliveryColumns = `dispatch_id, user_id, event_id, channel, status, receipt_id, error, at`
	inboxColumns    = `id, user_id, event_id, dispatch_id, title, content, read, created_at`
)

type dispatchRow struct {
	ID          string    `db:"id"`
	EventID     string    `db:"event_id"`
	IssuerID    string    `db:"issuer_id"`
	Audience    string    `db:"audience"`
	Specialty   string    `db:"specialty"`
	Channel     string    `db:"channel"`
	Title       string    `db:"title"`
	Content     string    `db:"content"`
	TargetCount int       `db:"target_count"`
	Succeeded   int       `db:"succeeded"`
	Failed      int       `db:"failed"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type deliveryRow struct {
	DispatchID string    `db:"dispatch_id"`
	UserID     string    `db:"user_id"`
	EventID    string    `db:"event_id"`
	Channel    string    `db:"channel"`
	Status     string    `db:"status"`
	ReceiptID  string    `db:"receipt_id"`
	Error      string    `db:"error"`
	At         time.Time `db:"at"`
}

type inboxRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	EventID    string    `db:"event_id"`
	DispatchID string    `db:"dispatch_id"`
	Title      string    `db:"title"`
	Content    string    `db:"content"`
	Read       bool      `db:"read"`
	CreatedAt  time.Time `db:"created_at"`
}

func newDispatchRow(d notification.Dispatch) dispatchRow {
	return dispatchRow{
		ID: d.ID, EventID: d.EventID, IssuerID: d.IssuerID, Audience: string(d.Audience), Specialty: d.Specialty,
		Channel: string(d.Channel), Title: d.Title, Content: d.Content, TargetCount: d.TargetCount,
		Succeeded: d.Succeeded, Failed: d.Failed, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func (r dispatchRow) dispatch() notification.Dispatch {
	return notification.Dispatch{
		ID: r.ID, EventID: r.EventID, IssuerID: r.IssuerID, Audience: notification.Audience(r.Audience),
		Specialty: r.Specialty, Channel: notification.Channel(r.Channel), Title: r.Title, Content: r.Content,
		TargetCount: r.TargetCount, Succeeded: r.Succeeded, Failed: r.Failed,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r deliveryRow) delivery() notification.Delivery {
	return notification.Delivery{
		DispatchID: r.DispatchID, EventID: r.EventID, UserID: r.UserID, Channel: notification.Channel(r.Channel),
		Status: notification.DeliveryStatus(r.Status), ReceiptID: r.ReceiptID, Error: r.Error, At: r.At.UTC(),
	}
}

func (r inboxRow) item() notification.InboxItem {
	return notification.InboxItem{
		ID: r.ID, UserID: r.UserID, EventID: r.EventID, DispatchID: r.DispatchID,
		Title: r.Title, Content: r.Content, Read: r.Read, CreatedAt: r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateDispatch(ctx context.Context, d notification.Dispatch) (notification.Dispatch, error) {
	if d.ID == "" {
		d.ID = core.NewID()
	}
	_, err := repo.db.namedExec(ctx, `INSERT INTO dispatches (`+dispatchColumns+`) VALUES (
		:id, :event_id, :issuer_id, :audience, :specialty, :channel, :title, :content,
		:target_count, :succeeded, :failed, :created_at, :updated_at)`, newDispatchRow(d))
	if err != nil {
		return notification.Dispatch{}, errors.Wrap(err, "inserting dispatch")
	}
	return d, nil
}

func (repo *notificationRepository) GetDispatch(ctx context.Context, id string) (notification.Dispatch, error) {
	var r dispatchRow
	if err := repo.db.get(ctx, &r, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = ?`, id); err != nil {
		return notification.Dispatch{}, trapNoRowsErr(err, notification.ErrDispatchNotFound, "getting dispatch")
	}
	return r.dispatch(), nil
}

func (repo *notificationRepository) UpdateDispatch(ctx context.Context, d notification.Dispatch) (notification.Dispatch, error) {
	ok, err := repo.db.namedExec(ctx, `UPDATE dispatches SET
		target_count = :target_count, succeeded = :succeeded, failed = :failed, updated_at = :updated_at
		WHERE id = :id`, newDispatchRow(d))
	if err != nil {
		return notification.Dispatch{}, errors.Wrap(err, "updating dispatch")
	}
	if !ok {
		return notification.Dispatch{}, notification.ErrDispatchNotFound
	}
	return d, nil
}

func (repo *notificationRepository) ListDispatches(ctx context.Context, eventID string) ([]notification.Dispatch, error) {
	var rows []dispatchRow
	err := repo.db.selectAll(ctx, &rows, `SELECT `+dispatchColumns+` FROM dispatches
		WHERE event_id = ? ORDER BY created_at DESC`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "listing dispatches")
	}
	ds := make([]notification.Dispatch, 0, len(rows))
	for _, r := range rows {
		ds = append(ds, r.dispatch())
	}
	return ds, nil
}

func (repo *notificationRepository) GetDelivery(ctx context.Context, dispatchID, userID string) (notification.Delivery, error) {
	var r deliveryRow
	err := repo.db.get(ctx, &r, `SELECT `+deliveryColumns+` FROM deliveries WHERE dispatch_id = ? AND user_id = ?`,
		dispatchID, userID)
	if err != nil {
		return notification.Delivery{}, trapNoRowsErr(err, notification.ErrDeliveryNotFound, "getting delivery")
	}
	return r.delivery(), nil
}

func (repo *notificationRepository) SaveDelivery(ctx context.Context, d notification.Delivery) error {
	_, err := repo.db.namedExec(ctx, `INSERT INTO deliveries (`+deliveryColumns+`) VALUES (
		:dispatch_id, :user_id, :event_id, :channel, :status, :receipt_id, :error, :at)
		ON CONFLICT (dispatch_id, user_id) DO UPDATE SET
		channel = EXCLUDED.channel, status = EXCLUDED.status, receipt_id = EXCLUDED.receipt_id,
		error = EXCLUDED.error, at = EXCLUDED.at`, deliveryRow{
		DispatchID: d.DispatchID, UserID: d.UserID, EventID: d.EventID, Channel: string(d.Channel),
		Status: string(d.Status), ReceiptID: d.ReceiptID, Error: d.Error, At: d.At.UTC(),
	})
	return errors.Wrap(err, "saving delivery")
}

func (repo *notificationRepository) ListDeliveries(ctx context.Context, dispatchID string) ([]notification.Delivery, error) {
	var rows []deliveryRow
	err := repo.db.selectAll(ctx, &rows, `SELECT `+deliveryColumns+` FROM deliveries WHERE dispatch_id = ? ORDER BY at`, dispatchID)
	if err != nil {
		return nil, errors.Wrap(err, "listing deliveries")
	}
	ds := make([]notification.Delivery, 0, len(rows))
	for _, r := range rows {
		ds = append(ds, r.delivery())
	}
	return ds, nil
}

func (repo *notificationRepository) CreateInboxItem(ctx context.Context, item notification.InboxItem) (notification.InboxItem, error) {
	if item.ID == "" {
		item.ID = core.NewID()
	}
	_, err := repo.db.namedExec(ctx, `INSERT INTO inbox_items (`+inboxColumns+`) VALUES (
		:id, :user_id, :event_id, :dispatch_id, :title, :content, :read, :created_at)`, inboxRow{
		ID: item.ID, UserID: item.UserID, EventID: item.EventID, DispatchID: item.DispatchID,
		Title: item.Title, Content: item.Content, Read: item.Read, CreatedAt: item.CreatedAt.UTC(),
	})
	if err != nil {
		return notification.InboxItem{}, errors.Wrap(err, "inserting inbox item")
	}
	return item, nil
}

func (repo *notificationRepository) ListInbox(ctx context.Context, userID string) ([]notification.InboxItem, error) {
	var rows []inboxRow
	err := repo.db.selectAll(ctx, &rows, `SELECT `+inboxColumns+` FROM inbox_items WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing inbox")
	}
	items := make([]notification.InboxItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.item())
	}
	return items, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	ok, err := repo.db.execOne(ctx, `UPDATE inbox_items SET read = true WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return errors.Wrap(err, "marking inbox item read")
	}
	if !ok {
		return notification.ErrInboxNotFound
	}
	return nil
}
