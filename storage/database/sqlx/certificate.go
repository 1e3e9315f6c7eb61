package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/certificate"
	"github.com/eventsoft/eventsoft/core/event"
)

const (
	certConfigColumns = `event_id, official_event_name, date_range, signer_name, signer_title, general_text,
	signature_image, institution, role_texts, version, updated_by, updated_at`
	certificateColumns = `id, event_id, enrollment_id, user_id, track, config_version, issued_by, issued_at`
)

type certConfigRow struct {
	EventID           string    `db:"event_id"`
	OfficialEventName string    `db:"official_event_name"`
	DateRange         string    `db:"date_range"`
	SignerName        string    `db:"signer_name"`
	SignerTitle       string    `db:"signer_title"`
	GeneralText       string    `db:"general_text"`
	SignatureImage    string    `db:"signature_image"`
	Institution       string    `db:"institution"`
	RoleTexts         null.JSON `db:"role_texts"`
	Version           int       `db:"version"`
	UpdatedBy         string    `db:"updated_by"`
	UpdatedAt         time.Time `db:"updated_at"`
}

type certificateRow struct {
	ID            string    `db:"id"`
	EventID       string    `db:"event_id"`
	EnrollmentID  string    `db:"enrollment_id"`
	UserID        string    `db:"user_id"`
	Track         string    `db:"track"`
	ConfigVersion int       `db:"config_version"`
	IssuedBy      string    `db:"issued_by"`
	IssuedAt      time.Time `db:"issued_at"`
}

type certificateRepository struct {
	db *DB
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db *DB) certificate.Repository {
	return &certificateRepository{db: db}
}

func (repo *certificateRepository) GetConfig(ctx context.Context, eventID string) (certificate.Config, error) {
	var r certConfigRow
	if err := repo.db.get(ctx, &r, `SELECT `+certConfigColumns+` FROM certificate_configs WHERE event_id = ?`, eventID); err != nil {
		return certificate.Config{}, trapNoRowsErr(err, certificate.ErrConfigNotFound, "getting certificate config")
	}
	c := certificate.Config{
		EventID:           r.EventID,
		OfficialEventName: r.OfficialEventName,
		DateRange:         r.DateRange,
		SignerName:        r.SignerName,
		SignerTitle:       r.SignerTitle,
		GeneralText:       r.GeneralText,
		SignatureImage:    r.SignatureImage,
		Institution:       r.Institution,
		RoleTexts:         make(map[event.Track]string),
		Version:           r.Version,
		UpdatedBy:         r.UpdatedBy,
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if err := fromJSON(r.RoleTexts, &c.RoleTexts); err != nil {
		return certificate.Config{}, err
	}
	return c, nil
}

func (repo *certificateRepository) SaveConfig(ctx context.Context, c certificate.Config) (certificate.Config, error) {
	texts := c.RoleTexts
	if texts == nil {
		texts = map[event.Track]string{}
	}
	roleTexts, err := toJSON(texts)
	if err != nil {
		return certificate.Config{}, err
	}
	_, err = repo.db.execOne(ctx, `INSERT INTO certificate_configs (`+certConfigColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET
		official_event_name = EXCLUDED.official_event_name, date_range = EXCLUDED.date_range,
		signer_name = EXCLUDED.signer_name, signer_title = EXCLUDED.signer_title,
		general_text = EXCLUDED.general_text, signature_image = EXCLUDED.signature_image,
		institution = EXCLUDED.institution, role_texts = EXCLUDED.role_texts,
		version = EXCLUDED.version, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`,
		c.EventID, c.OfficialEventName, c.DateRange, c.SignerName, c.SignerTitle, c.GeneralText,
		c.SignatureImage, c.Institution, roleTexts, c.Version, c.UpdatedBy, c.UpdatedAt.UTC())
	if isFKViolation(err, "certificate_configs_event_id_fkey") {
		return certificate.Config{}, event.ErrNotFound
	}
	if err != nil {
		return certificate.Config{}, errors.Wrap(err, "saving certificate config")
	}
	return c, nil
}

func (repo *certificateRepository) CreateCertificate(ctx context.Context, c certificate.Certificate) (certificate.Certificate, error) {
	if c.ID == "" {
		c.ID = core.NewID()
	}
	_, err := repo.db.namedExec(ctx, `INSERT INTO certificates (`+certificateColumns+`) VALUES (
		:id, :event_id, :enrollment_id, :user_id, :track, :config_version, :issued_by, :issued_at)`, certificateRow{
		ID: c.ID, EventID: c.EventID, EnrollmentID: c.EnrollmentID, UserID: c.UserID, Track: string(c.Track),
		ConfigVersion: c.ConfigVersion, IssuedBy: c.IssuedBy, IssuedAt: c.IssuedAt.UTC(),
	})
	if err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return c, nil
}

func (repo *certificateRepository) ListCertificates(ctx context.Context, eventID string) ([]certificate.Certificate, error) {
	var rows []certificateRow
	err := repo.db.selectAll(ctx, &rows, `SELECT `+certificateColumns+` FROM certificates WHERE event_id = ? ORDER BY issued_at`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "listing certificates")
	}
	cs := make([]certificate.Certificate, 0, len(rows))
	for _, r := range rows {
		cs = append(cs, certificate.Certificate{
			ID: r.ID, EventID: r.EventID, EnrollmentID: r.EnrollmentID, UserID: r.UserID, Track: event.Track(r.Track),
			ConfigVersion: r.ConfigVersion, IssuedBy: r.IssuedBy, IssuedAt: r.IssuedAt.UTC(),
		})
	}
	return cs, nil
}
