// Package instrument publishes the evaluation instrument of an event: its weighted criteria,
// a title, a version and a downloadable PDF. Every publication is kept and stays addressable.
package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/criterion"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewError(core.KindNotFound, "instrument not found")
	ErrAlreadyPublished = core.NewError(core.KindInvalidTransition, "the instrument is already published, update it instead")
	ErrNoCriteria       = core.NewFieldError(core.KindFieldRequired, "criteria", "the event has no criteria to publish")
)

type Instrument struct {
	EventID     string             `json:"event_id"`
	Version     int                `json:"version"`
	Title       string             `json:"title"`
	PublishedAt time.Time          `json:"published_at"` // date
	PublishedBy string             `json:"published_by"`
	Criteria    []criterion.Listed `json:"criteria"`
	PDFKey      string             `json:"-"`
	PDFURL      string             `json:"pdf_url"`
}

type (
	Repository interface {
		// CreateInstrument appends a version to the event's publication history.
		CreateInstrument(ctx context.Context, inst Instrument) (Instrument, error)
		// GetInstrument returns the given version, or the latest one when version is 0.
		GetInstrument(ctx context.Context, eventID string, version int) (Instrument, error)
		ListInstruments(ctx context.Context, eventID string) ([]Instrument, error)
	}

	Renderer interface {
		RenderInstrument(eventName string, inst Instrument) ([]byte, error)
	}

	Service struct {
		tx       core.Transactor
		repo     Repository
		events   event.Repository
		roster   event.Roster
		criteria *criterion.Service
		renderer Renderer
		files    core.FileStore
		audit    *audit.Log
		logger   core.Logger
	}
)

func NewService(
	tx core.Transactor,
	repo Repository,
	events event.Repository,
	roster event.Roster,
	criteria *criterion.Service,
	renderer Renderer,
	files core.FileStore,
	auditLog *audit.Log,
	logger core.Logger,
) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		events:   events,
		roster:   roster,
		criteria: criteria,
		renderer: renderer,
		files:    files,
		audit:    auditLog,
		logger:   logger,
	}
}

// Publish publishes the first version of the event's instrument.
func (svc *Service) Publish(ctx context.Context, p user.Principal, eventID, title string) (Instrument, error) {
	return svc.publish(ctx, p, eventID, title, false)
}

// Update publishes a new version; earlier versions remain addressable.
func (svc *Service) Update(ctx context.Context, p user.Principal, eventID, title string) (Instrument, error) {
	return svc.publish(ctx, p, eventID, title, true)
}

func (svc *Service) publish(ctx context.Context, p user.Principal, eventID, title string, update bool) (Instrument, error) {
	title = core.CleanString(title)
	if err := core.CheckVar("title", title, "required,max=200"); err != nil {
		return Instrument{}, err
	}
	var inst Instrument
	staged := core.StageFiles(svc.files, svc.logger)
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		ev, err := svc.events.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err = access.Can(p, access.PublishInstrument, ev.Target()); err != nil {
			return err
		}

		prev, err := svc.repo.GetInstrument(ctx, ev.ID, 0)
		switch {
		case err == nil && !update:
			return ErrAlreadyPublished
		case err != nil && errors.Cause(err) != ErrNotFound:
			return errors.Wrap(err, "getting instrument")
		case err != nil && update:
			return err
		}

		cs, err := svc.criteria.Criteria(ctx, ev.ID)
		if err != nil {
			return err
		}
		if len(cs) == 0 {
			return ErrNoCriteria
		}
		inst = Instrument{
			EventID:     ev.ID,
			Version:     prev.Version + 1,
			Title:       title,
			PublishedAt: core.Today(),
			PublishedBy: p.UserID,
			Criteria:    cs,
		}
		pdf, err := svc.renderer.RenderInstrument(ev.Name, inst)
		if err != nil {
			return errors.Wrap(err, "rendering instrument")
		}
		inst.PDFKey = core.MediaKey(fmt.Sprintf("events/%s/instrument/v%d", ev.ID, inst.Version), "instrumento.pdf")
		if err = staged.Put(ctx, inst.PDFKey, pdf, "application/pdf"); err != nil {
			return core.Unavailable(errors.Wrap(err, "storing instrument"))
		}
		if inst, err = svc.repo.CreateInstrument(ctx, inst); err != nil {
			return errors.Wrap(err, "creating instrument")
		}
		return svc.audit.Record(ctx, audit.Entry{
			ActorID: p.UserID, Action: "instrument.publish", TargetType: "event", TargetID: ev.ID,
			From: fmt.Sprint(prev.Version), To: fmt.Sprint(inst.Version),
		})
	})
	if err = staged.Settle(ctx, err); err != nil {
		return Instrument{}, err
	}
	inst.PDFURL = svc.files.URL(inst.PDFKey)
	return inst, nil
}

// view checks that p may read the event's instrument: its owner, a SUPERADMIN or a confirmed subject.
func (svc *Service) view(ctx context.Context, p user.Principal, eventID string) (event.Event, error) {
	ev, err := svc.events.GetEvent(ctx, eventID)
	if err != nil {
		return event.Event{}, err
	}
	m := access.NotEnrolled
	if p.IsAuthenticated() {
		if m, err = svc.roster.Membership(ctx, ev.ID, p.UserID); err != nil {
			return event.Event{}, errors.Wrap(err, "resolving membership")
		}
	}
	return ev, access.Can(p, access.ViewInstrument, ev.Target(m))
}

// Get returns a published version of the instrument; version 0 is the latest.
func (svc *Service) Get(ctx context.Context, p user.Principal, eventID string, version int) (Instrument, error) {
	ev, err := svc.view(ctx, p, eventID)
	if err != nil {
		return Instrument{}, err
	}
	inst, err := svc.repo.GetInstrument(ctx, ev.ID, version)
	if err != nil {
		return Instrument{}, err
	}
	inst.PDFURL = svc.files.URL(inst.PDFKey)
	return inst, nil
}

// History lists every published version, oldest first.
func (svc *Service) History(ctx context.Context, p user.Principal, eventID string) ([]Instrument, error) {
	ev, err := svc.view(ctx, p, eventID)
	if err != nil {
		return nil, err
	}
	insts, err := svc.repo.ListInstruments(ctx, ev.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing instruments")
	}
	for i := range insts {
		insts[i].PDFURL = svc.files.URL(insts[i].PDFKey)
	}
	return insts, nil
}
