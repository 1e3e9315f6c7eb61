package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core/notification"
)

type notificationApi struct {
	svc *notification.Service
}

func registerNotificationAPI(g *echo.Group, auth *authenticator, svc *notification.Service) {
	api := notificationApi{svc: svc}

	authed := auth.required()
	g.POST("/events/:id/notifications", api.notify, authed...)
	g.GET("/events/:id/notifications", api.dispatches, authed...)

	ig := g.Group("/inbox")
	ig.GET("", api.inbox, authed...)
	ig.POST("/:id/read", api.markRead, authed...)
}

// Handlers

func (api *notificationApi) notify(ctx echo.Context) error {
	var data notification.Request
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	report, err := api.svc.Notify(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "notifying")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *notificationApi) dispatches(ctx echo.Context) error {
	ds, err := api.svc.Dispatches(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing dispatches")
	}
	if ds == nil {
		ds = []notification.Dispatch{}
	}
	return ctx.JSON(http.StatusOK, ds)
}

func (api *notificationApi) inbox(ctx echo.Context) error {
	items, err := api.svc.Inbox(ctx.Request().Context(), principalOf(ctx))
	if err != nil {
		return errors.Wrap(err, "listing inbox")
	}
	if items == nil {
		items = []notification.InboxItem{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	if err := api.svc.MarkRead(ctx.Request().Context(), principalOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "marking inbox item read")
	}
	return ctx.NoContent(http.StatusNoContent)
}
