package notification

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
)

var (
	// errors
	ErrDispatchNotFound = core.NewError(core.KindNotFound, "dispatch not found")
	ErrDeliveryNotFound = core.NewError(core.KindNotFound, "delivery not found")
	ErrInboxNotFound    = core.NewError(core.KindNotFound, "notification not found")
	ErrNoSender         = core.NewFieldError(core.KindFieldInvalid, "channel", "channel is not available")
	ErrDispatchMismatch = core.NewFieldError(core.KindFieldInvalid, "dispatch_id", "dispatch was created for another message or audience")
)

type (
	Repository interface {
		CreateDispatch(ctx context.Context, d Dispatch) (Dispatch, error)
		GetDispatch(ctx context.Context, id string) (Dispatch, error)
		UpdateDispatch(ctx context.Context, d Dispatch) (Dispatch, error)
		ListDispatches(ctx context.Context, eventID string) ([]Dispatch, error)

		GetDelivery(ctx context.Context, dispatchID, userID string) (Delivery, error)
		// SaveDelivery creates or replaces the delivery of (dispatch, user).
		SaveDelivery(ctx context.Context, d Delivery) error
		ListDeliveries(ctx context.Context, dispatchID string) ([]Delivery, error)

		CreateInboxItem(ctx context.Context, item InboxItem) (InboxItem, error)
		ListInbox(ctx context.Context, userID string) ([]InboxItem, error)
		MarkRead(ctx context.Context, userID, id string) error
	}

	// RecipientFinder selects the confirmed subjects of an event.
	RecipientFinder interface {
		Recipients(ctx context.Context, eventID string, tracks []event.Track, specialty string) ([]enrollment.Recipient, error)
	}

	Service struct {
		repo    Repository
		events  event.Repository
		finder  RecipientFinder
		senders map[Channel]Sender
		logger  core.Logger

		dispatches *prometheus.CounterVec
		deliveries *prometheus.CounterVec
	}
)

func NewService(repo Repository, events event.Repository, finder RecipientFinder, senders []Sender, logger core.Logger) *Service {
	svc := &Service{
		repo:    repo,
		events:  events,
		finder:  finder,
		senders: make(map[Channel]Sender, len(senders)),
		logger:  logger,
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventsoft",
			Subsystem: "notification",
			Name:      "dispatches_total",
			Help:      "Notification dispatch runs by channel.",
		}, []string{"channel"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventsoft",
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by channel and status.",
		}, []string{"channel", "status"}),
	}
	for _, s := range senders {
		svc.senders[s.Channel()] = s
	}
	return svc
}

// Collectors returns the metrics of the dispatcher, for registration.
func (svc *Service) Collectors() []prometheus.Collector {
	return []prometheus.Collector{svc.dispatches, svc.deliveries}
}

// Notify sends a message to the confirmed subjects of an event selected by the request's audience.
//
// Each subject receives at most one copy per dispatch ID: running a request again with the same
// DispatchID only delivers to recipients not yet served. Individual delivery failures are reported,
// they never abort the dispatch. Cancelling ctx before the first delivery aborts the dispatch;
// afterwards the remaining recipients are reported as cancelled.
func (svc *Service) Notify(ctx context.Context, p user.Principal, eventID string, req Request) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}
	sender, ok := svc.senders[req.Channel]
	if !ok {
		return Report{}, ErrNoSender
	}
	ev, err := svc.events.GetEvent(ctx, eventID)
	if err != nil {
		return Report{}, err
	}
	if err = access.Can(p, access.Notify, ev.Target()); err != nil {
		return Report{}, err
	}
	recipients, err := svc.finder.Recipients(ctx, ev.ID, req.Audience.Tracks(), req.Specialty)
	if err != nil {
		return Report{}, errors.Wrap(err, "selecting recipients")
	}
	if err = ctx.Err(); err != nil {
		return Report{}, errors.Wrap(err, "dispatch cancelled")
	}

	d, err := svc.dispatch(ctx, p, ev, req, len(recipients))
	if err != nil {
		return Report{}, err
	}
	svc.dispatches.WithLabelValues(string(d.Channel)).Inc()

	// deliveries are recorded even after ctx is cancelled
	store := context.WithoutCancel(ctx)
	report := Report{DispatchID: d.ID, Targets: len(recipients), Outcomes: make([]Outcome, 0, len(recipients))}
	for _, r := range recipients {
		out := Outcome{UserID: r.UserID, Name: r.Name}

		prev, err := svc.repo.GetDelivery(store, d.ID, r.UserID)
		switch {
		case err == nil && prev.Status == StatusSent:
			out.Status, out.Repeated = StatusSent, true
			report.add(out)
			continue
		case err != nil && errors.Cause(err) != ErrDeliveryNotFound:
			return Report{}, errors.Wrap(err, "getting delivery")
		}

		dl := Delivery{DispatchID: d.ID, EventID: ev.ID, UserID: r.UserID, Channel: d.Channel}
		if cErr := ctx.Err(); cErr != nil {
			report.Cancelled = true
			dl.Status, dl.Error = StatusCancelled, cErr.Error()
		} else if receipt, sErr := sender.Deliver(ctx, ev, d, r); sErr != nil {
			dl.Status, dl.Error = StatusFailed, sErr.Error()
			svc.logger.Warn(fmt.Sprintf("dispatch %s: delivering to %s: %v", d.ID, r.UserID, sErr))
		} else {
			dl.Status, dl.ReceiptID = StatusSent, receipt.ID
		}
		dl.At = core.Now()
		if err = svc.repo.SaveDelivery(store, dl); err != nil {
			return Report{}, errors.Wrap(err, "saving delivery")
		}
		svc.deliveries.WithLabelValues(string(d.Channel), string(dl.Status)).Inc()

		out.Status, out.Error = dl.Status, dl.Error
		report.add(out)
	}

	d.TargetCount = report.Targets
	d.Succeeded, d.Failed = report.Succeeded, report.Failed
	d.UpdatedAt = core.Now()
	if _, err = svc.repo.UpdateDispatch(store, d); err != nil {
		return Report{}, errors.Wrap(err, "updating dispatch")
	}
	if report.Targets > 0 {
		report.Coverage = float64(report.Succeeded) * 100 / float64(report.Targets)
	}
	return report, nil
}

func (r *Report) add(out Outcome) {
	if out.Status == StatusSent {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, out)
}

// dispatch returns the dispatch record of req, creating it on the first run.
func (svc *Service) dispatch(ctx context.Context, p user.Principal, ev event.Event, req Request, targets int) (Dispatch, error) {
	if req.DispatchID != "" {
		d, err := svc.repo.GetDispatch(ctx, req.DispatchID)
		switch {
		case err == nil:
			if d.EventID != ev.ID {
				return Dispatch{}, ErrDispatchNotFound
			}
			if !d.matches(req) {
				return Dispatch{}, ErrDispatchMismatch
			}
			return d, nil
		case errors.Cause(err) != ErrDispatchNotFound:
			return Dispatch{}, errors.Wrap(err, "getting dispatch")
		}
	} else {
		req.DispatchID = core.NewID()
	}

	now := core.Now()
	d, err := svc.repo.CreateDispatch(ctx, Dispatch{
		ID:          req.DispatchID,
		EventID:     ev.ID,
		IssuerID:    p.UserID,
		Audience:    req.Audience,
		Specialty:   req.Specialty,
		Channel:     req.Channel,
		Title:       req.Title,
		Content:     req.Content,
		TargetCount: targets,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return d, errors.Wrap(err, "creating dispatch")
}

// Dispatches returns the dispatch log of an event.
func (svc *Service) Dispatches(ctx context.Context, p user.Principal, eventID string) ([]Dispatch, error) {
	ev, err := svc.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err = access.Can(p, access.Notify, ev.Target()); err != nil {
		return nil, err
	}
	return svc.repo.ListDispatches(ctx, ev.ID)
}

// Inbox returns the In-App notifications of the principal, newest first.
func (svc *Service) Inbox(ctx context.Context, p user.Principal) ([]InboxItem, error) {
	if !p.IsAuthenticated() {
		return nil, core.NewError(core.KindNotAuthenticated, "authentication required")
	}
	return svc.repo.ListInbox(ctx, p.UserID)
}

func (svc *Service) MarkRead(ctx context.Context, p user.Principal, id string) error {
	if !p.IsAuthenticated() {
		return core.NewError(core.KindNotAuthenticated, "authentication required")
	}
	return svc.repo.MarkRead(ctx, p.UserID, id)
}
