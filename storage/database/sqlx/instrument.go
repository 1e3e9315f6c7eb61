package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eventsoft/eventsoft/core/criterion"
	"github.com/eventsoft/eventsoft/core/instrument"
)

const instrumentColumns = `event_id, version, title, published_at, published_by, criteria, pdf_key, pdf_url`

type instrumentRow struct {
	EventID     string    `db:"event_id"`
	Version     int       `db:"version"`
	Title       string    `db:"title"`
	PublishedAt time.Time `db:"published_at"`
	PublishedBy string    `db:"published_by"`
	Criteria    null.JSON `db:"criteria"`
	PDFKey      string    `db:"pdf_key"`
	PDFURL      string    `db:"pdf_url"`
}

func (r instrumentRow) instrument() (instrument.Instrument, error) {
	inst := instrument.Instrument{
		EventID:     r.EventID,
		Version:     r.Version,
		Title:       r.Title,
		PublishedAt: r.PublishedAt.UTC(),
		PublishedBy: r.PublishedBy,
		Criteria:    []criterion.Listed{},
		PDFKey:      r.PDFKey,
		PDFURL:      r.PDFURL,
	}
	return inst, fromJSON(r.Criteria, &inst.Criteria)
}

type instrumentRepository struct {
	db *DB
}

var _ instrument.Repository = (*instrumentRepository)(nil) // interface compliance check

func NewInstrumentRepository(db *DB) instrument.Repository {
	return &instrumentRepository{db: db}
}

func (repo *instrumentRepository) CreateInstrument(ctx context.Context, inst instrument.Instrument) (instrument.Instrument, error) {
	criteria, err := toJSON(inst.Criteria)
	if err != nil {
		return instrument.Instrument{}, err
	}
	_, err = repo.db.execOne(ctx, `INSERT INTO instruments (`+instrumentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.EventID, inst.Version, inst.Title, inst.PublishedAt.UTC(), inst.PublishedBy, criteria, inst.PDFKey, inst.PDFURL)
	if isUniqueViolation(err, "instruments_pkey") {
		return instrument.Instrument{}, instrument.ErrAlreadyPublished
	}
	if err != nil {
		return instrument.Instrument{}, errors.Wrap(err, "inserting instrument")
	}
	return inst, nil
}

func (repo *instrumentRepository) GetInstrument(ctx context.Context, eventID string, version int) (instrument.Instrument, error) {
	var (
		r   instrumentRow
		err error
	)
	if version > 0 {
		err = repo.db.get(ctx, &r, `SELECT `+instrumentColumns+` FROM instruments WHERE event_id = ? AND version = ?`, eventID, version)
	} else {
		err = repo.db.get(ctx, &r, `SELECT `+instrumentColumns+` FROM instruments WHERE event_id = ?
			ORDER BY version DESC LIMIT 1`, eventID)
	}
	if err != nil {
		return instrument.Instrument{}, trapNoRowsErr(err, instrument.ErrNotFound, "getting instrument")
	}
	return r.instrument()
}

// ListInstruments returns the publication history, oldest version first.
func (repo *instrumentRepository) ListInstruments(ctx context.Context, eventID string) ([]instrument.Instrument, error) {
	var rows []instrumentRow
	err := repo.db.selectAll(ctx, &rows, `SELECT `+instrumentColumns+` FROM instruments WHERE event_id = ? ORDER BY version`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "listing instruments")
	}
	insts := make([]instrument.Instrument, 0, len(rows))
	for _, r := range rows {
		inst, err := r.instrument()
		if err != nil {
			return nil, err
		}
		insts = append(insts, inst)
	}
	return insts, nil
}
