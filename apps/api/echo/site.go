package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core/audit"
	"github.com/eventsoft/eventsoft/core/site"
)

type siteApi struct {
	svc *site.Service
}

func registerSiteAPI(g *echo.Group, auth *authenticator, svc *site.Service) {
	api := siteApi{svc: svc}

	sg := g.Group("/site")
	sg.GET("", api.public)

	authed := auth.required()
	sg.GET("/draft", api.retrieve, authed...)
	sg.PATCH("/draft", api.editDraft, authed...)
	sg.POST("/publish", api.publish, authed...)
}

// Handlers

func (api *siteApi) public(ctx echo.Context) error {
	c, err := api.svc.Public(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting published site")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *siteApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), principalOf(ctx))
	if err != nil {
		return errors.Wrap(err, "getting site")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *siteApi) editDraft(ctx echo.Context) error {
	var data site.Edit
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	s, err := api.svc.EditDraft(ctx.Request().Context(), principalOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "editing site draft")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *siteApi) publish(ctx echo.Context) error {
	s, err := api.svc.Publish(ctx.Request().Context(), principalOf(ctx))
	if err != nil {
		return errors.Wrap(err, "publishing site")
	}
	return ctx.JSON(http.StatusOK, s)
}

type auditApi struct {
	log *audit.Log
}

func registerAuditAPI(g *echo.Group, auth *authenticator, log *audit.Log) {
	api := auditApi{log: log}
	g.GET("/audit", api.query, append(auth.required(), platformAdminMiddleware)...)
}

func (api *auditApi) query(ctx echo.Context) error {
	filter := audit.QueryFilter{
		TargetType: ctx.QueryParam("target_type"),
		TargetID:   ctx.QueryParam("target_id"),
		Action:     ctx.QueryParam("action"),
	}
	entries, err := api.log.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing audit entries")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
