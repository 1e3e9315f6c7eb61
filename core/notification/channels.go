package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
)

// Sender delivers a dispatch to one recipient over a single channel.
type Sender interface {
	Channel() Channel
	Deliver(ctx context.Context, ev event.Event, d Dispatch, r enrollment.Recipient) (core.DeliveryReceipt, error)
}

var (
	ErrNoEmail = errors.New("recipient has no email address")
	ErrNoPhone = errors.New("recipient has no phone number")
)

type EmailSender struct {
	mailSvc core.EmailService
}

func NewEmailSender(mailSvc core.EmailService) *EmailSender {
	return &EmailSender{mailSvc: mailSvc}
}

func (s *EmailSender) Channel() Channel { return ChannelEmail }

func (s *EmailSender) Deliver(ctx context.Context, ev event.Event, d Dispatch, r enrollment.Recipient) (core.DeliveryReceipt, error) {
	if r.Email == "" {
		return core.DeliveryReceipt{}, ErrNoEmail
	}
	return s.mailSvc.Send(ctx, &core.EmailMessage{
		To:           []mail.Address{{Name: r.Name, Address: r.Email}},
		Subject:      d.Title,
		TemplateName: "notification",
		TemplateData: map[string]string{
			"Name":    r.Name,
			"Event":   ev.Name,
			"Title":   d.Title,
			"Content": d.Content,
		},
	})
}

type SMSSender struct {
	sms core.SMSService
}

func NewSMSSender(sms core.SMSService) *SMSSender {
	return &SMSSender{sms: sms}
}

func (s *SMSSender) Channel() Channel { return ChannelSMS }

func (s *SMSSender) Deliver(ctx context.Context, ev event.Event, d Dispatch, r enrollment.Recipient) (core.DeliveryReceipt, error) {
	if r.Phone == "" {
		return core.DeliveryReceipt{}, ErrNoPhone
	}
	return s.sms.SendSMS(ctx, r.Phone, fmt.Sprintf("%s - %s: %s", ev.Name, d.Title, d.Content))
}

// PushSender publishes one message per recipient on the recipient's subject.
type PushSender struct {
	pub core.Publisher
}

func NewPushSender(pub core.Publisher) *PushSender {
	return &PushSender{pub: pub}
}

func (s *PushSender) Channel() Channel { return ChannelPush }

// PushSubject is the subject the push notifications of a user are published on.
func PushSubject(userID string) string {
	return "eventsoft.notifications." + userID
}

type pushPayload struct {
	DispatchID string `json:"dispatch_id"`
	EventID    string `json:"event_id"`
	Event      string `json:"event"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

func (s *PushSender) Deliver(ctx context.Context, ev event.Event, d Dispatch, r enrollment.Recipient) (core.DeliveryReceipt, error) {
	data, err := json.Marshal(pushPayload{DispatchID: d.ID, EventID: ev.ID, Event: ev.Name, Title: d.Title, Content: d.Content})
	if err != nil {
		return core.DeliveryReceipt{}, errors.Wrap(err, "encoding push payload")
	}
	if err = s.pub.Publish(ctx, PushSubject(r.UserID), data); err != nil {
		return core.DeliveryReceipt{}, err
	}
	return core.DeliveryReceipt{ID: core.NewID(), AcceptedAt: core.Now()}, nil
}

// InAppSender stores the notification in the recipient's inbox.
type InAppSender struct {
	repo Repository
}

func NewInAppSender(repo Repository) *InAppSender {
	return &InAppSender{repo: repo}
}

func (s *InAppSender) Channel() Channel { return ChannelInApp }

func (s *InAppSender) Deliver(ctx context.Context, ev event.Event, d Dispatch, r enrollment.Recipient) (core.DeliveryReceipt, error) {
	item, err := s.repo.CreateInboxItem(ctx, InboxItem{
		ID:         core.NewID(),
		UserID:     r.UserID,
		EventID:    ev.ID,
		DispatchID: d.ID,
		Title:      d.Title,
		Content:    d.Content,
		CreatedAt:  core.Now(),
	})
	if err != nil {
		return core.DeliveryReceipt{}, err
	}
	return core.DeliveryReceipt{ID: item.ID, AcceptedAt: item.CreatedAt}, nil
}
