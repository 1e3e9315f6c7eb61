package dummydb

import (
	"context"
	"sort"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/notification"
)

type notificationRepository struct {
	dispatches *table[string, notification.Dispatch]
	deliveries *table[string, notification.Delivery]
	inbox      *table[string, notification.InboxItem]
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{dispatches: db.dispatches, deliveries: db.deliveries, inbox: db.inbox}
}

func (repo *notificationRepository) CreateDispatch(_ context.Context, d notification.Dispatch) (notification.Dispatch, error) {
	if d.ID == "" {
		d.ID = core.NewID()
	}
	repo.dispatches.put(d.ID, d)
	return d, nil
}

func (repo *notificationRepository) GetDispatch(_ context.Context, id string) (notification.Dispatch, error) {
	if d, ok := repo.dispatches.get(id); ok {
		return d, nil
	}
	return notification.Dispatch{}, notification.ErrDispatchNotFound
}

func (repo *notificationRepository) UpdateDispatch(_ context.Context, d notification.Dispatch) (notification.Dispatch, error) {
	if _, ok := repo.dispatches.get(d.ID); !ok {
		return notification.Dispatch{}, notification.ErrDispatchNotFound
	}
	repo.dispatches.put(d.ID, d)
	return d, nil
}

func (repo *notificationRepository) ListDispatches(_ context.Context, eventID string) ([]notification.Dispatch, error) {
	ds := repo.dispatches.filter(func(d notification.Dispatch) bool { return d.EventID == eventID })
	sort.Slice(ds, func(i, j int) bool { return ds[i].CreatedAt.After(ds[j].CreatedAt) })
	return ds, nil
}

func deliveryKey(dispatchID, userID string) string {
	return dispatchID + "/" + userID
}

func (repo *notificationRepository) GetDelivery(_ context.Context, dispatchID, userID string) (notification.Delivery, error) {
	if d, ok := repo.deliveries.get(deliveryKey(dispatchID, userID)); ok {
		return d, nil
	}
	return notification.Delivery{}, notification.ErrDeliveryNotFound
}

func (repo *notificationRepository) SaveDelivery(_ context.Context, d notification.Delivery) error {
	repo.deliveries.put(deliveryKey(d.DispatchID, d.UserID), d)
	return nil
}

func (repo *notificationRepository) ListDeliveries(_ context.Context, dispatchID string) ([]notification.Delivery, error) {
	ds := repo.deliveries.filter(func(d notification.Delivery) bool { return d.DispatchID == dispatchID })
	sort.Slice(ds, func(i, j int) bool { return ds[i].At.Before(ds[j].At) })
	return ds, nil
}

func (repo *notificationRepository) CreateInboxItem(_ context.Context, item notification.InboxItem) (notification.InboxItem, error) {
	if item.ID == "" {
		item.ID = core.NewID()
	}
	repo.inbox.put(item.ID, item)
	return item, nil
}

func (repo *notificationRepository) ListInbox(_ context.Context, userID string) ([]notification.InboxItem, error) {
	items := repo.inbox.filter(func(it notification.InboxItem) bool { return it.UserID == userID })
	// newest first
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, userID, id string) error {
	repo.inbox.Lock()
	defer repo.inbox.Unlock()
	item, ok := repo.inbox.rows[id]
	if !ok || item.UserID != userID {
		return notification.ErrInboxNotFound
	}
	item.Read = true
	repo.inbox.rows[id] = item
	return nil
}
