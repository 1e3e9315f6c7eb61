package dummydb

import (
	"context"
	"sort"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/certificate"
	"github.com/eventsoft/eventsoft/core/event"
)

type certificateRepository struct {
	configs      *table[string, certificate.Config]
	certificates *table[string, certificate.Certificate]
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db *DB) certificate.Repository {
	return &certificateRepository{configs: db.certConfigs, certificates: db.certificates}
}

func (repo *certificateRepository) GetConfig(_ context.Context, eventID string) (certificate.Config, error) {
	if c, ok := repo.configs.get(eventID); ok {
		return c, nil
	}
	return certificate.Config{}, certificate.ErrConfigNotFound
}

func (repo *certificateRepository) SaveConfig(_ context.Context, c certificate.Config) (certificate.Config, error) {
	texts := make(map[event.Track]string, len(c.RoleTexts))
	for k, v := range c.RoleTexts {
		texts[k] = v
	}
	c.RoleTexts = texts
	repo.configs.put(c.EventID, c)
	return c, nil
}

func (repo *certificateRepository) CreateCertificate(_ context.Context, c certificate.Certificate) (certificate.Certificate, error) {
	if c.ID == "" {
		c.ID = core.NewID()
	}
	repo.certificates.put(c.ID, c)
	return c, nil
}

func (repo *certificateRepository) ListCertificates(_ context.Context, eventID string) ([]certificate.Certificate, error) {
	cs := repo.certificates.filter(func(c certificate.Certificate) bool { return c.EventID == eventID })
	sort.Slice(cs, func(i, j int) bool { return cs[i].IssuedAt.Before(cs[j].IssuedAt) })
	return cs, nil
}
