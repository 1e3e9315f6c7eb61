// Package site holds the public site configuration edited by the platform's super-admins.
// Edits go to a draft; publishing copies the draft over the published version, which is all the public sees.
package site

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/access"
	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/user"
)

var ErrNotFound = core.NewError(core.KindNotFound, "site configuration not found")

type Content struct {
	WelcomeText    string            `json:"welcome_text"`
	PrimaryColor   string            `json:"primary_color"`
	LogoURL        string            `json:"logo_url"`
	SEOTitle       string            `json:"seo_title"`
	SEODescription string            `json:"seo_description"`
	FooterLinks    map[string]string `json:"footer_links"`
}

func (c Content) clone() Content {
	links := make(map[string]string, len(c.FooterLinks))
	for k, v := range c.FooterLinks {
		links[k] = v
	}
	c.FooterLinks = links
	return c
}

// DefaultContent is served until the first publication.
var DefaultContent = Content{
	WelcomeText:  "Bienvenido",
	PrimaryColor: "#1a73e8",
	SEOTitle:     "EventSoft",
	FooterLinks:  map[string]string{},
}

type Site struct {
	Draft       Content   `json:"draft"`
	Published   Content   `json:"published"`
	IsPublished bool      `json:"is_published"`
	Version     int       `json:"version"`
	LastEditor  string    `json:"last_editor"`
	LastEditAt  time.Time `json:"last_edit_at"`
	PublishedBy string    `json:"published_by,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Edit lists the draft fields to change; nil fields are left unchanged.
type Edit struct {
	WelcomeText    *string           `json:"welcome_text" validate:"omitempty,max=5000"`
	PrimaryColor   *string           `json:"primary_color" validate:"omitempty,hexcolor"`
	LogoURL        *string           `json:"logo_url" validate:"omitempty,url"`
	SEOTitle       *string           `json:"seo_title" validate:"omitempty,max=70"`
	SEODescription *string           `json:"seo_description" validate:"omitempty,max=160"`
	FooterLinks    map[string]string `json:"footer_links" validate:"omitempty,dive,keys,required,max=50,endkeys,url"`
}

func (e Edit) apply(c Content) (Content, error) {
	if err := core.Validate.Struct(e); err != nil {
		return Content{}, err
	}
	c = c.clone()
	if e.WelcomeText != nil {
		c.WelcomeText = *e.WelcomeText
	}
	if e.PrimaryColor != nil {
		c.PrimaryColor = core.CleanString(*e.PrimaryColor, true /* lower */)
	}
	if e.LogoURL != nil {
		c.LogoURL = core.CleanString(*e.LogoURL)
	}
	if e.SEOTitle != nil {
		c.SEOTitle = core.CleanString(*e.SEOTitle)
	}
	if e.SEODescription != nil {
		c.SEODescription = core.CleanString(*e.SEODescription)
	}
	if e.FooterLinks != nil {
		c.FooterLinks = make(map[string]string, len(e.FooterLinks))
		for k, v := range e.FooterLinks {
			c.FooterLinks[core.CleanString(k)] = v
		}
	}
	return c, nil
}

type (
	Repository interface {
		// GetSite fails with ErrNotFound until the configuration is first saved.
		GetSite(ctx context.Context) (Site, error)
		SaveSite(ctx context.Context, s Site) (Site, error)
	}

	Service struct {
		tx    core.Transactor
		repo  Repository
		audit *audit.Log
	}
)

func NewService(tx core.Transactor, repo Repository, auditLog *audit.Log) *Service {
	return &Service{tx: tx, repo: repo, audit: auditLog}
}

func (svc *Service) load(ctx context.Context) (Site, error) {
	s, err := svc.repo.GetSite(ctx)
	if errors.Cause(err) == ErrNotFound {
		return Site{Draft: DefaultContent.clone(), Published: DefaultContent.clone()}, nil
	}
	return s, err
}

// Get returns both versions of the configuration.
func (svc *Service) Get(ctx context.Context, p user.Principal) (Site, error) {
	if err := access.Can(p, access.PlatformAdmin, access.Target{}); err != nil {
		return Site{}, err
	}
	return svc.load(ctx)
}

// EditDraft applies e to the draft; the published version is untouched.
func (svc *Service) EditDraft(ctx context.Context, p user.Principal, e Edit) (Site, error) {
	if err := access.Can(p, access.PlatformAdmin, access.Target{}); err != nil {
		return Site{}, err
	}
	var s Site
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx); err != nil {
			return err
		}
		if s.Draft, err = e.apply(s.Draft); err != nil {
			return err
		}
		s.LastEditor = p.UserID
		s.LastEditAt = core.Now()
		s, err = svc.repo.SaveSite(ctx, s)
		return errors.Wrap(err, "saving site draft")
	})
	return s, err
}

// Publish copies the draft over the published version.
func (svc *Service) Publish(ctx context.Context, p user.Principal) (Site, error) {
	if err := access.Can(p, access.PlatformAdmin, access.Target{}); err != nil {
		return Site{}, err
	}
	var s Site
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx); err != nil {
			return err
		}
		s.Published = s.Draft.clone()
		s.IsPublished = true
		s.Version++
		s.PublishedBy = p.UserID
		s.PublishedAt = core.Now()
		s.LastEditor = p.UserID
		s.LastEditAt = s.PublishedAt
		if s, err = svc.repo.SaveSite(ctx, s); err != nil {
			return errors.Wrap(err, "publishing site")
		}
		return svc.audit.Record(ctx, audit.Entry{
			ActorID: p.UserID, Action: "site.publish", TargetType: "site", TargetID: "site", To: strconv.Itoa(s.Version),
		})
	})
	return s, err
}

// Public returns the published content, or the defaults before the first publication.
func (svc *Service) Public(ctx context.Context) (Content, error) {
	var s Site
	err := core.RetryRead(ctx, func(ctx context.Context) (err error) {
		s, err = svc.load(ctx)
		return err
	})
	if err != nil {
		return Content{}, err
	}
	if !s.IsPublished {
		return DefaultContent.clone(), nil
	}
	return s.Published, nil
}
