package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core/instrument"
)

type instrumentApi struct {
	svc *instrument.Service
}

func registerInstrumentAPI(g *echo.Group, auth *authenticator, svc *instrument.Service) {
	api := instrumentApi{svc: svc}

	authed := auth.required()
	ig := g.Group("/events/:id/instrument")
	ig.GET("", api.retrieve, authed...)
	ig.POST("", api.publish, authed...)
	ig.PUT("", api.update, authed...)
	ig.GET("/history", api.history, authed...)
}

// Handlers

func (api *instrumentApi) publish(ctx echo.Context) error {
	var data PublishInstrumentRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	inst, err := api.svc.Publish(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data.Title)
	if err != nil {
		return errors.Wrap(err, "publishing instrument")
	}
	return ctx.JSON(http.StatusCreated, inst)
}

func (api *instrumentApi) update(ctx echo.Context) error {
	var data PublishInstrumentRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	inst, err := api.svc.Update(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data.Title)
	if err != nil {
		return errors.Wrap(err, "updating instrument")
	}
	return ctx.JSON(http.StatusOK, inst)
}

// retrieve returns the latest version, or the one given by the `version` query parameter.
func (api *instrumentApi) retrieve(ctx echo.Context) error {
	version, err := queryInt(ctx, "version")
	if err != nil {
		return err
	}
	inst, err := api.svc.Get(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), version)
	if err != nil {
		return errors.Wrap(err, "getting instrument")
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *instrumentApi) history(ctx echo.Context) error {
	insts, err := api.svc.History(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing instrument history")
	}
	if insts == nil {
		insts = []instrument.Instrument{}
	}
	return ctx.JSON(http.StatusOK, insts)
}

type PublishInstrumentRequest struct {
	Title string `json:"title"`
}
