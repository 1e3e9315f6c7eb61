// Package certificate issues the participation certificates of an event's confirmed assistants.
package certificate

import (
	"context"
	"fmt"
	"io"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
)

var (
	// errors
	ErrConfigNotFound   = core.NewError(core.KindNotFound, "the event has no certificate configuration")
	ErrNotConfirmed     = core.NewFieldError(core.KindFieldRequired, "confirmed", "the dispatch must be confirmed before it starts")
	ErrInvalidSignature = core.NewFieldError(core.KindFieldInvalid, "signature_image", "signature must be a PNG or JPEG image")

	previewID = "VISTA-PREVIA"
)

type (
	Repository interface {
		GetConfig(ctx context.Context, eventID string) (Config, error)
		SaveConfig(ctx context.Context, c Config) (Config, error)
		CreateCertificate(ctx context.Context, c Certificate) (Certificate, error)
		ListCertificates(ctx context.Context, eventID string) ([]Certificate, error)
	}

	// Renderer turns a resolved certificate into a PDF document.
	Renderer interface {
		RenderCertificate(doc Document) ([]byte, error)
	}

	// RecipientFinder selects the confirmed subjects of an event.
	RecipientFinder interface {
		Recipients(ctx context.Context, eventID string, tracks []event.Track, specialty string) ([]enrollment.Recipient, error)
	}

	Service struct {
		repo     Repository
		events   event.Repository
		finder   RecipientFinder
		renderer Renderer
		files    core.FileStore
		mailSvc  core.EmailService
		audit    *audit.Log
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	events event.Repository,
	finder RecipientFinder,
	renderer Renderer,
	files core.FileStore,
	mailSvc core.EmailService,
	auditLog *audit.Log,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		events:   events,
		finder:   finder,
		renderer: renderer,
		files:    files,
		mailSvc:  mailSvc,
		audit:    auditLog,
		logger:   logger,
	}
}

func (svc *Service) manage(ctx context.Context, p user.Principal, eventID string) (event.Event, error) {
	ev, err := svc.events.GetEvent(ctx, eventID)
	if err != nil {
		return event.Event{}, err
	}
	return ev, access.Can(p, access.ManageCertificates, ev.Target())
}

func (svc *Service) GetConfig(ctx context.Context, p user.Principal, eventID string) (Config, error) {
	ev, err := svc.manage(ctx, p, eventID)
	if err != nil {
		return Config{}, err
	}
	return svc.repo.GetConfig(ctx, ev.ID)
}

// SaveConfig replaces the texts of the configuration and bumps its version; the signature is kept.
func (svc *Service) SaveConfig(ctx context.Context, p user.Principal, eventID string, ci ConfigInput) (Config, error) {
	if err := ci.Validate(); err != nil {
		return Config{}, err
	}
	ev, err := svc.manage(ctx, p, eventID)
	if err != nil {
		return Config{}, err
	}
	c, err := svc.repo.GetConfig(ctx, ev.ID)
	if err != nil && errors.Cause(err) != ErrConfigNotFound {
		return Config{}, errors.Wrap(err, "getting certificate config")
	}
	c.EventID = ev.ID
	c.OfficialEventName = ci.OfficialEventName
	c.DateRange = ci.DateRange
	c.SignerName = ci.SignerName
	c.SignerTitle = ci.SignerTitle
	c.GeneralText = ci.GeneralText
	c.Institution = ci.Institution
	c.RoleTexts = ci.RoleTexts
	return svc.save(ctx, p, c)
}

func (svc *Service) save(ctx context.Context, p user.Principal, c Config) (Config, error) {
	c.Version++
	c.UpdatedBy = p.UserID
	c.UpdatedAt = core.Now()
	c, err := svc.repo.SaveConfig(ctx, c)
	if err != nil {
		return Config{}, errors.Wrap(err, "saving certificate config")
	}
	err = svc.audit.Record(ctx, audit.Entry{
		ActorID: p.UserID, Action: "certificate.config", TargetType: "event", TargetID: c.EventID, To: fmt.Sprint(c.Version),
	})
	return c, err
}

// SetSignature stores the signer's signature image.
func (svc *Service) SetSignature(ctx context.Context, p user.Principal, eventID string, up *core.Upload) (Config, error) {
	if up.Empty() {
		return Config{}, core.NewFieldError(core.KindFieldRequired, "signature_image", "file is required")
	}
	if up.ContentType != "image/png" && up.ContentType != "image/jpeg" {
		return Config{}, ErrInvalidSignature
	}
	ev, err := svc.manage(ctx, p, eventID)
	if err != nil {
		return Config{}, err
	}
	c, err := svc.repo.GetConfig(ctx, ev.ID)
	if err != nil {
		return Config{}, err
	}
	staged := core.StageFiles(svc.files, svc.logger)
	key := core.MediaKey(fmt.Sprintf("events/%s/certificates", ev.ID), up.Filename)
	if err = staged.Put(ctx, key, up.Content, up.ContentType); err != nil {
		return Config{}, core.Unavailable(errors.Wrap(err, "storing signature"))
	}
	c.SignatureImage = key
	c, err = svc.save(ctx, p, c)
	if err = staged.Settle(ctx, err); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (svc *Service) signature(ctx context.Context, c Config) ([]byte, error) {
	if c.SignatureImage == "" {
		return nil, nil
	}
	r, err := svc.files.Get(ctx, c.SignatureImage)
	if err != nil {
		return nil, core.Unavailable(errors.Wrap(err, "reading signature"))
	}
	defer r.Close()
	return io.ReadAll(r)
}

func document(c Config, track event.Track, vars Variables, signature []byte) Document {
	body := c.GeneralText
	if txt := c.RoleTexts[track]; txt != "" {
		body += "\n\n" + txt
	}
	return Document{
		CertificateID: vars.CertificateID,
		Institution:   vars.Resolve(c.Institution),
		Title:         vars.Resolve(c.OfficialEventName),
		RecipientName: vars.RecipientName,
		Body:          vars.Resolve(body),
		DateRange:     vars.Resolve(c.DateRange),
		SignerName:    c.SignerName,
		SignerTitle:   c.SignerTitle,
		Signature:     signature,
	}
}

// Preview renders the certificate of a sample recipient.
func (svc *Service) Preview(ctx context.Context, p user.Principal, eventID, recipientName string) ([]byte, error) {
	ev, err := svc.manage(ctx, p, eventID)
	if err != nil {
		return nil, err
	}
	c, err := svc.repo.GetConfig(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	sig, err := svc.signature(ctx, c)
	if err != nil {
		return nil, err
	}
	if recipientName = core.CleanString(recipientName); recipientName == "" {
		recipientName = "Nombre del Asistente"
	}
	vars := Variables{RecipientName: recipientName, EventDate: c.DateRange, CertificateID: previewID, EventName: c.OfficialEventName}
	pdf, err := svc.renderer.RenderCertificate(document(c, event.TrackAssistant, vars, sig))
	return pdf, errors.Wrap(err, "rendering certificate")
}

// Dispatch issues and mails a certificate to every assistant whose enrollment is Confirmado.
// It refuses to start unless confirmed is set; per-recipient failures are reported, not returned.
func (svc *Service) Dispatch(ctx context.Context, p user.Principal, eventID string, confirmed bool) (Report, error) {
	ev, err := svc.manage(ctx, p, eventID)
	if err != nil {
		return Report{}, err
	}
	if !confirmed {
		return Report{}, ErrNotConfirmed
	}
	c, err := svc.repo.GetConfig(ctx, ev.ID)
	if err != nil {
		return Report{}, err
	}
	sig, err := svc.signature(ctx, c)
	if err != nil {
		return Report{}, err
	}
	recipients, err := svc.finder.Recipients(ctx, ev.ID, []event.Track{event.TrackAssistant}, "")
	if err != nil {
		return Report{}, errors.Wrap(err, "selecting recipients")
	}

	report := Report{EventID: ev.ID, Targets: len(recipients), Outcomes: make([]Outcome, 0, len(recipients))}
	for _, r := range recipients {
		out := svc.issue(ctx, p, ev, c, sig, r)
		if out.Sent {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	err = svc.audit.Record(ctx, audit.Entry{
		ActorID: p.UserID, Action: "certificate.dispatch", TargetType: "event", TargetID: ev.ID,
		Detail: fmt.Sprintf("%d/%d sent", report.Succeeded, report.Targets),
	})
	return report, err
}

func (svc *Service) issue(ctx context.Context, p user.Principal, ev event.Event, c Config, sig []byte, r enrollment.Recipient) Outcome {
	out := Outcome{UserID: r.UserID, Name: r.Name, Email: r.Email, CertificateID: core.NewID()}
	fail := func(err error) Outcome {
		svc.logger.Warn(fmt.Sprintf("certificate for %s: %v", r.UserID, err), err)
		out.Error = err.Error()
		return out
	}

	vars := Variables{RecipientName: r.Name, EventDate: c.DateRange, CertificateID: out.CertificateID, EventName: c.OfficialEventName}
	pdf, err := svc.renderer.RenderCertificate(document(c, r.Track, vars, sig))
	if err != nil {
		return fail(errors.Wrap(err, "rendering"))
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: r.Name, Address: r.Email}},
		Subject:      "Certificado de asistencia - " + c.OfficialEventName,
		TemplateName: "certificate",
		TemplateData: map[string]string{"Name": r.Name, "Event": c.OfficialEventName, "CertificateID": out.CertificateID},
	}
	msg.AttachBytes(pdf, "certificado.pdf", "application/pdf")
	if _, err = svc.mailSvc.Send(ctx, msg); err != nil {
		return fail(errors.Wrap(err, "sending"))
	}

	_, err = svc.repo.CreateCertificate(ctx, Certificate{
		ID:            out.CertificateID,
		EventID:       ev.ID,
		EnrollmentID:  r.EnrollmentID,
		UserID:        r.UserID,
		Track:         r.Track,
		ConfigVersion: c.Version,
		IssuedBy:      p.UserID,
		IssuedAt:      core.Now(),
	})
	if err != nil {
		return fail(errors.Wrap(err, "recording certificate"))
	}
	out.Sent = true
	return out
}

func (svc *Service) List(ctx context.Context, p user.Principal, eventID string) ([]Certificate, error) {
	ev, err := svc.manage(ctx, p, eventID)
	if err != nil {
		return nil, err
	}
	return svc.repo.ListCertificates(ctx, ev.ID)
}
