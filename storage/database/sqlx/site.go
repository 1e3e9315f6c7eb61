package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eventsoft/eventsoft/core/site"
)

type siteRow struct {
	Draft       null.JSON   `db:"draft"`
	Published   null.JSON   `db:"published"`
	IsPublished bool        `db:"is_published"`
	Version     int         `db:"version"`
	LastEditor  string      `db:"last_editor"`
	LastEditAt  null.Time   `db:"last_edit_at"`
	PublishedBy null.String `db:"published_by"`
	PublishedAt null.Time   `db:"published_at"`
}

type siteRepository struct {
	db *DB
}

var _ site.Repository = (*siteRepository)(nil) // interface compliance check

func NewSiteRepository(db *DB) site.Repository {
	return &siteRepository{db: db}
}

func (repo *siteRepository) GetSite(ctx context.Context) (site.Site, error) {
	var r siteRow
	err := repo.db.get(ctx, &r, `SELECT draft, published, is_published, version, last_editor, last_edit_at,
		published_by, published_at FROM site WHERE id = 1`)
	if err != nil {
		return site.Site{}, trapNoRowsErr(err, site.ErrNotFound, "getting site")
	}

	s := site.Site{
		IsPublished: r.IsPublished,
		Version:     r.Version,
		LastEditor:  r.LastEditor,
		LastEditAt:  r.LastEditAt.Time.UTC(),
		PublishedBy: r.PublishedBy.String,
		PublishedAt: r.PublishedAt.Time.UTC(),
	}
	if err = fromJSON(r.Draft, &s.Draft); err != nil {
		return site.Site{}, err
	}
	if err = fromJSON(r.Published, &s.Published); err != nil {
		return site.Site{}, err
	}
	return s, nil
}

func (repo *siteRepository) SaveSite(ctx context.Context, s site.Site) (site.Site, error) {
	draft, err := toJSON(s.Draft)
	if err != nil {
		return site.Site{}, err
	}
	published, err := toJSON(s.Published)
	if err != nil {
		return site.Site{}, err
	}
	_, err = repo.db.execOne(ctx, `INSERT INTO site (id, draft, published, is_published, version, last_editor,
		last_edit_at, published_by, published_at) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		draft = EXCLUDED.draft, published = EXCLUDED.published, is_published = EXCLUDED.is_published,
		version = EXCLUDED.version, last_editor = EXCLUDED.last_editor, last_edit_at = EXCLUDED.last_edit_at,
		published_by = EXCLUDED.published_by, published_at = EXCLUDED.published_at`,
		draft, published, s.IsPublished, s.Version, s.LastEditor,
		null.NewTime(s.LastEditAt.UTC(), !s.LastEditAt.IsZero()),
		null.NewString(s.PublishedBy, s.PublishedBy != ""),
		null.NewTime(s.PublishedAt.UTC(), !s.PublishedAt.IsZero()))
	if err != nil {
		return site.Site{}, errors.Wrap(err, "saving site")
	}
	return s, nil
}
