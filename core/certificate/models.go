package certificate

import (
	"strings"
	"time"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/event"
)

// Placeholders substituted per recipient in the certificate texts.
const (
	PlaceholderRecipient     = "[NOMBRE_RECEPTOR]"
	PlaceholderEventDate     = "[FECHA_EVENTO]"
	PlaceholderCertificateID = "[ID_CERTIFICADO]"
	PlaceholderEventName     = "[NOMBRE_EVENTO]"
)

// Variables are the per-recipient values of the placeholders.
type Variables struct {
	RecipientName string
	EventDate     string
	CertificateID string
	EventName     string
}

// Resolve substitutes every placeholder of text.
func (v Variables) Resolve(text string) string {
	return strings.NewReplacer(
		PlaceholderRecipient, v.RecipientName,
		PlaceholderEventDate, v.EventDate,
		PlaceholderCertificateID, v.CertificateID,
		PlaceholderEventName, v.EventName,
	).Replace(text)
}

// Config is the per-event certificate configuration. Every save increments Version.
type Config struct {
	EventID           string                 `json:"event_id"`
	OfficialEventName string                 `json:"official_event_name"`
	DateRange         string                 `json:"date_range"`
	SignerName        string                 `json:"signer_name"`
	SignerTitle       string                 `json:"signer_title"`
	GeneralText       string                 `json:"general_text"`
	SignatureImage    string                 `json:"signature_image,omitempty"`
	Institution       string                 `json:"institution"`
	RoleTexts         map[event.Track]string `json:"role_specific_texts"`
	Version           int                    `json:"version"`
	UpdatedBy         string                 `json:"updated_by"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

type ConfigInput struct {
	OfficialEventName string                 `json:"official_event_name" validate:"required,notblank,max=200"`
	DateRange         string                 `json:"date_range" validate:"required,notblank,max=100"`
	SignerName        string                 `json:"signer_name" validate:"required,notblank,max=150"`
	SignerTitle       string                 `json:"signer_title" validate:"required,notblank,max=150"`
	GeneralText       string                 `json:"general_text" validate:"required,notblank,max=2000"`
	Institution       string                 `json:"institution" validate:"required,notblank,max=200"`
	RoleTexts         map[event.Track]string `json:"role_specific_texts" validate:"dive,max=1000"`
}

func (ci *ConfigInput) Validate() error {
	ci.OfficialEventName = core.CleanString(ci.OfficialEventName)
	ci.DateRange = core.CleanString(ci.DateRange)
	ci.SignerName = core.CleanString(ci.SignerName)
	ci.SignerTitle = core.CleanString(ci.SignerTitle)
	ci.GeneralText = strings.TrimSpace(ci.GeneralText)
	ci.Institution = core.CleanString(ci.Institution)
	for t := range ci.RoleTexts {
		if _, err := event.ParseTrack(string(t)); err != nil {
			return core.NewFieldError(core.KindFieldInvalid, "role_specific_texts", "unknown track "+string(t))
		}
	}
	return core.Validate.Struct(ci)
}

// Document is a fully resolved certificate, ready to render.
type Document struct {
	CertificateID string
	Institution   string
	Title         string
	RecipientName string
	Body          string
	DateRange     string
	SignerName    string
	SignerTitle   string
	Signature     []byte // PNG or JPEG, optional
}

// Certificate records one issued certificate.
type Certificate struct {
	ID            string      `json:"id"`
	EventID       string      `json:"event_id"`
	EnrollmentID  string      `json:"enrollment_id"`
	UserID        string      `json:"user_id"`
	Track         event.Track `json:"track"`
	ConfigVersion int         `json:"config_version"`
	IssuedBy      string      `json:"issued_by"`
	IssuedAt      time.Time   `json:"issued_at"`
}

type Outcome struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	CertificateID string `json:"certificate_id,omitempty"`
	Sent          bool   `json:"sent"`
	Error         string `json:"error,omitempty"`
}

type Report struct {
	EventID   string    `json:"event_id"`
	Targets   int       `json:"targets"`
	Succeeded int       `json:"exitosos"`
	Failed    int       `json:"fallidos"`
	Outcomes  []Outcome `json:"outcomes"`
}
