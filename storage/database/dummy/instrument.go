package dummydb

import (
	"context"
	"fmt"
	"sort"

	"github.com/eventsoft/eventsoft/core/instrument"
)

type instrumentRepository struct {
	instruments *table[string, instrument.Instrument]
}

var _ instrument.Repository = (*instrumentRepository)(nil) // interface compliance check

func NewInstrumentRepository(db *DB) instrument.Repository {
	return &instrumentRepository{instruments: db.instruments}
}

func instrumentKey(eventID string, version int) string {
	return fmt.Sprintf("%s/%d", eventID, version)
}

func (repo *instrumentRepository) CreateInstrument(_ context.Context, inst instrument.Instrument) (instrument.Instrument, error) {
	repo.instruments.Lock()
	defer repo.instruments.Unlock()
	key := instrumentKey(inst.EventID, inst.Version)
	if _, ok := repo.instruments.rows[key]; ok {
		return instrument.Instrument{}, instrument.ErrAlreadyPublished
	}
	repo.instruments.rows[key] = inst
	return inst, nil
}

func (repo *instrumentRepository) GetInstrument(ctx context.Context, eventID string, version int) (instrument.Instrument, error) {
	if version > 0 {
		if inst, ok := repo.instruments.get(instrumentKey(eventID, version)); ok {
			return inst, nil
		}
		return instrument.Instrument{}, instrument.ErrNotFound
	}
	history, _ := repo.ListInstruments(ctx, eventID)
	if len(history) == 0 {
		return instrument.Instrument{}, instrument.ErrNotFound
	}
	return history[len(history)-1], nil
}

// ListInstruments returns the publication history, oldest version first.
func (repo *instrumentRepository) ListInstruments(_ context.Context, eventID string) ([]instrument.Instrument, error) {
	insts := repo.instruments.filter(func(inst instrument.Instrument) bool { return inst.EventID == eventID })
	sort.Slice(insts, func(i, j int) bool { return insts[i].Version < insts[j].Version })
	return insts, nil
}
