package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core/certificate"
)

const mimeApplicationPDF = "application/pdf"

type certificateApi struct {
	svc *certificate.Service
}

func registerCertificateAPI(g *echo.Group, auth *authenticator, svc *certificate.Service) {
	api := certificateApi{svc: svc}

	authed := auth.required()
	cg := g.Group("/events/:id/certificates")
	cg.GET("", api.query, authed...)
	cg.POST("", api.dispatch, authed...)
	cg.GET("/config", api.getConfig, authed...)
	cg.PUT("/config", api.saveConfig, authed...)
	cg.PUT("/config/signature", api.setSignature, authed...)
	cg.GET("/preview", api.preview, authed...)
}

// Handlers

func (api *certificateApi) getConfig(ctx echo.Context) error {
	c, err := api.svc.GetConfig(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting certificate config")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *certificateApi) saveConfig(ctx echo.Context) error {
	var data certificate.ConfigInput
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.SaveConfig(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "saving certificate config")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *certificateApi) setSignature(ctx echo.Context) error {
	up, err := requireUpload(ctx, "file")
	if err != nil {
		return err
	}
	c, err := api.svc.SetSignature(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), up)
	if err != nil {
		return errors.Wrap(err, "setting signature")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *certificateApi) preview(ctx echo.Context) error {
	pdf, err := api.svc.Preview(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), ctx.QueryParam("name"))
	if err != nil {
		return errors.Wrap(err, "previewing certificate")
	}
	return ctx.Blob(http.StatusOK, mimeApplicationPDF, pdf)
}

func (api *certificateApi) dispatch(ctx echo.Context) error {
	var data DispatchCertificatesRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	report, err := api.svc.Dispatch(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data.Confirmed)
	if err != nil {
		return errors.Wrap(err, "dispatching certificates")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *certificateApi) query(ctx echo.Context) error {
	cs, err := api.svc.List(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing certificates")
	}
	if cs == nil {
		cs = []certificate.Certificate{}
	}
	return ctx.JSON(http.StatusOK, cs)
}

// DispatchCertificatesRequest must confirm the bulk send explicitly.
type DispatchCertificatesRequest struct {
	Confirmed bool `json:"confirmed"`
}
