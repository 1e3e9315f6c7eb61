package core

import (
	"context"
	"io"
	"time"
)

// Upload is a file received from a client, before it is handed to the FileStore.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

func (u *Upload) Empty() bool { return u == nil || len(u.Content) == 0 }

// DeliveryReceipt acknowledges the hand-off of a message to a transport.
type DeliveryReceipt struct {
	ID         string
	AcceptedAt time.Time
}

type (
	// SMSService is any service that can deliver text messages to a phone number.
	SMSService interface {
		SendSMS(ctx context.Context, to, body string) (DeliveryReceipt, error)
	}

	// Publisher is any message broker the push channel can publish to.
	Publisher interface {
		Publish(ctx context.Context, subject string, data []byte) error
	}

	// FileStore is an opaque put/get store of media files.
	FileStore interface {
		Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
		Get(ctx context.Context, key string) (io.ReadCloser, error)
		Delete(ctx context.Context, key string) error
		URL(key string) string
	}
)
