package certificate_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/certificate"
	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/services/render"
	"github.com/eventsoft/eventsoft/tests"
)

func configInput() certificate.ConfigInput {
	return certificate.ConfigInput{
		OfficialEventName: "Seminario X",
		DateRange:         "10 al 12 de marzo",
		SignerName:        "Laura Gómez",
		SignerTitle:       "Decana",
		GeneralText:       "Se certifica que [NOMBRE_RECEPTOR] asistió a [NOMBRE_EVENTO] ([FECHA_EVENTO]). Código [ID_CERTIFICADO].",
		Institution:       "Universidad de Caldas",
		RoleTexts:         map[event.Track]string{event.TrackAssistant: "En calidad de asistente."},
	}
}

// recordingRenderer keeps the documents it renders.
type recordingRenderer struct {
	mu   sync.Mutex
	docs []certificate.Document
}

func (r *recordingRenderer) RenderCertificate(doc certificate.Document) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	return []byte("%PDF-1.3 " + doc.RecipientName), nil
}

func TestService_SaveConfig(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	_, other := env.CreateUser(t, user.RoleEventAdmin, "other")
	ev := env.CreateEvent(t, owner, 10)

	if _, err := env.Certificates.GetConfig(ctx, owner, ev.ID); errors.Cause(err) != certificate.ErrConfigNotFound {
		t.Errorf("GetConfig() error = %v, want %v", err, certificate.ErrConfigNotFound)
	}

	c, err := env.Certificates.SaveConfig(ctx, owner, ev.ID, configInput())
	if err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	if c.Version != 1 {
		t.Errorf("SaveConfig() version = %d, want 1", c.Version)
	}

	sig, err := rendersvc.New().RenderQR("firma")
	if err != nil {
		t.Fatalf("RenderQR() error = %v", err)
	}
	if c, err = env.Certificates.SetSignature(ctx, owner, ev.ID, &core.Upload{Filename: "firma.png", ContentType: "image/png", Content: sig}); err != nil {
		t.Fatalf("SetSignature() error = %v", err)
	}
	if c.Version != 2 || c.SignatureImage == "" {
		t.Errorf("SetSignature() = version %d, signature %q", c.Version, c.SignatureImage)
	}
	if _, err = env.Certificates.SetSignature(ctx, owner, ev.ID, &core.Upload{Filename: "firma.gif", ContentType: "image/gif", Content: []byte("GIF89a")}); errors.Cause(err) != certificate.ErrInvalidSignature {
		t.Errorf("SetSignature() gif error = %v, want %v", err, certificate.ErrInvalidSignature)
	}

	// saving the texts again keeps the signature
	in := configInput()
	in.SignerName = "Pedro Ruiz"
	if c, err = env.Certificates.SaveConfig(ctx, owner, ev.ID, in); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	if c.Version != 3 || c.SignatureImage == "" || c.SignerName != "Pedro Ruiz" {
		t.Errorf("SaveConfig() = %+v", c)
	}

	pdf, err := env.Certificates.Preview(ctx, owner, ev.ID, "")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Errorf("Preview() is not a PDF")
	}

	bad := configInput()
	bad.RoleTexts = map[event.Track]string{"speaker": "x"}
	tests := []struct {
		name     string
		p        user.Principal
		in       certificate.ConfigInput
		wantKind core.Kind
	}{
		{"unknown role", owner, bad, core.KindFieldInvalid},
		{"missing signer", owner, certificate.ConfigInput{OfficialEventName: "x"}, core.KindFieldRequired},
		{"other admin", other, configInput(), core.KindNotOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Certificates.SaveConfig(ctx, tt.p, ev.ID, tt.in)
			if kind := core.KindOf(err); kind != tt.wantKind {
				t.Errorf("SaveConfig() error = %v, want kind %v", err, tt.wantKind)
			}
		})
	}
}

func TestService_Dispatch(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	ev := env.CreateEvent(t, owner, 10)

	if _, err := env.Certificates.SaveConfig(ctx, owner, ev.ID, configInput()); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	confirmed, _ := env.Admit(t, owner, ev.ID, event.TrackAssistant, "ana")
	failing, _ := env.Admit(t, owner, ev.ID, event.TrackAssistant, "beto")
	approved, _ := env.Enroll(t, ev.ID, event.TrackAssistant, "ciro") // Aprobado, not yet Confirmado
	participant, _ := env.Admit(t, owner, ev.ID, event.TrackParticipant, "dora")
	env.Mail.Reset()

	if _, err := env.Certificates.Dispatch(ctx, owner, ev.ID, false); errors.Cause(err) != certificate.ErrNotConfirmed {
		t.Fatalf("Dispatch() unconfirmed error = %v, want %v", err, certificate.ErrNotConfirmed)
	}
	if len(env.Mail.Sent()) != 0 {
		t.Errorf("unconfirmed Dispatch() sent %d messages", len(env.Mail.Sent()))
	}

	failingUser, _ := env.Users.GetByID(ctx, failing.UserID)
	env.Mail.FailFor = map[string]bool{failingUser.Email: true}

	report, err := env.Certificates.Dispatch(ctx, owner, ev.ID, true)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if report.Targets != 2 || report.Succeeded != 1 || report.Failed != 1 {
		t.Errorf("Dispatch() report = %+v, want 1 sent and 1 failed of 2", report)
	}

	for _, tt := range []struct {
		userID string
		want   int
	}{{confirmed.UserID, 1}, {failing.UserID, 0}, {approved.UserID, 0}, {participant.UserID, 0}} {
		usr, _ := env.Users.GetByID(ctx, tt.userID)
		msgs := env.Mail.SentTo(usr.Email, "certificate")
		if len(msgs) != tt.want {
			t.Errorf("%s received %d certificates, want %d", usr.Username, len(msgs), tt.want)
			continue
		}
		if tt.want > 0 && (len(msgs[0].Attachments) != 1 || msgs[0].Attachments[0].Filename != "certificado.pdf") {
			t.Errorf("%s certificate has no PDF attachment", usr.Username)
		}
	}

	certs, err := env.Certificates.List(ctx, owner, ev.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(certs) != 1 || certs[0].UserID != confirmed.UserID || certs[0].ConfigVersion != 1 {
		t.Errorf("List() = %+v", certs)
	}
}

func TestService_DispatchResolvesPlaceholders(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	ev := env.CreateEvent(t, owner, 10)

	renderer := &recordingRenderer{}
	svc := certificate.NewService(env.CertificateRepo, env.EventRepo, env.Enrollments, renderer, env.Files, env.Mail, env.Audit, env.Logger)
	if _, err := svc.SaveConfig(ctx, owner, ev.ID, configInput()); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	enr, _ := env.Admit(t, owner, ev.ID, event.TrackAssistant, "ana")
	usr, _ := env.Users.GetByID(ctx, enr.UserID)

	report, err := svc.Dispatch(ctx, owner, ev.ID, true)
	if err != nil || report.Succeeded != 1 {
		t.Fatalf("Dispatch() = %+v, %v", report, err)
	}
	if len(renderer.docs) != 1 {
		t.Fatalf("rendered %d documents, want 1", len(renderer.docs))
	}
	doc := renderer.docs[0]
	want := "Se certifica que " + usr.FullName() + " asistió a Seminario X (10 al 12 de marzo). Código " +
		report.Outcomes[0].CertificateID + ".\n\nEn calidad de asistente."
	if doc.Body != want {
		t.Errorf("document body = %q, want %q", doc.Body, want)
	}
	if strings.Contains(doc.Body, "[") {
		t.Errorf("document body has unresolved placeholders")
	}
}

func TestVariables_Resolve(t *testing.T) {
	vars := certificate.Variables{RecipientName: "Ana", EventDate: "hoy", CertificateID: "C-1", EventName: "Foro"}
	tests := []struct {
		in, want string
	}{
		{"[NOMBRE_RECEPTOR]", "Ana"},
		{"[NOMBRE_EVENTO] - [FECHA_EVENTO]", "Foro - hoy"},
		{"[ID_CERTIFICADO] [ID_CERTIFICADO]", "C-1 C-1"},
		{"[DESCONOCIDO]", "[DESCONOCIDO]"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := vars.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
