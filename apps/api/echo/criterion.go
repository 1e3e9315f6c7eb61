package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core/criterion"
)

type criterionApi struct {
	svc *criterion.Service
}

func registerCriterionAPI(g *echo.Group, auth *authenticator, svc *criterion.Service) {
	api := criterionApi{svc: svc}

	authed := auth.required()
	eg := g.Group("/events/:id")
	eg.GET("/criteria", api.query, authed...)
	eg.POST("/criteria", api.create, authed...)
	eg.PATCH("/criteria/:criterionID", api.update, authed...)
	eg.DELETE("/criteria/:criterionID", api.destroy, authed...)
	eg.GET("/grades", api.grades, authed...)
	eg.POST("/grades", api.grade, authed...)
	eg.GET("/ranking", api.ranking, authed...)
	eg.GET("/podium", api.podium, authed...)
}

// Handlers

func (api *criterionApi) query(ctx echo.Context) error {
	cs, err := api.svc.List(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing criteria")
	}
	if cs == nil {
		cs = []criterion.Listed{}
	}
	return ctx.JSON(http.StatusOK, cs)
}

func (api *criterionApi) create(ctx echo.Context) error {
	var data criterion.NewCriterion
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.Create(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating criterion")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *criterionApi) update(ctx echo.Context) error {
	var data criterion.UpdateCriterion
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.Update(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), ctx.Param("criterionID"), data)
	if err != nil {
		return errors.Wrap(err, "updating criterion")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *criterionApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), ctx.Param("criterionID")); err != nil {
		return errors.Wrap(err, "deleting criterion")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *criterionApi) grade(ctx echo.Context) error {
	var data criterion.GradeRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	g, err := api.svc.Grade(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *criterionApi) grades(ctx echo.Context) error {
	gs, err := api.svc.Grades(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing grades")
	}
	if gs == nil {
		gs = []criterion.Grade{}
	}
	return ctx.JSON(http.StatusOK, gs)
}

func (api *criterionApi) ranking(ctx echo.Context) error {
	standings, err := api.svc.Ranking(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "ranking participants")
	}
	if standings == nil {
		standings = []criterion.Standing{}
	}
	return ctx.JSON(http.StatusOK, standings)
}

func (api *criterionApi) podium(ctx echo.Context) error {
	standings, err := api.svc.Podium(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting podium")
	}
	if standings == nil {
		standings = []criterion.Standing{}
	}
	return ctx.JSON(http.StatusOK, standings)
}
