package dummydb

import (
	"context"

	"github.com/eventsoft/eventsoft/core/site"
)

const siteKey = "site"

type siteRepository struct {
	site *table[string, site.Site]
}

var _ site.Repository = (*siteRepository)(nil) // interface compliance check

func NewSiteRepository(db *DB) site.Repository {
	return &siteRepository{site: db.site}
}

func (repo *siteRepository) GetSite(_ context.Context) (site.Site, error) {
	if s, ok := repo.site.get(siteKey); ok {
		return s, nil
	}
	return site.Site{}, site.ErrNotFound
}

func (repo *siteRepository) SaveSite(_ context.Context, s site.Site) (site.Site, error) {
	repo.site.put(siteKey, s)
	return s, nil
}
