package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core/event"
)

type eventApi struct {
	svc *event.Service
}

func registerEventAPI(g *echo.Group, auth *authenticator, svc *event.Service) {
	api := eventApi{svc: svc}

	eg := g.Group("/events")

	// public catalogue: anonymous visitors only see listed events
	anyone := auth.anyone()
	eg.GET("", api.query, anyone...)
	eg.GET("/:id", api.retrieve, anyone...)

	authed := auth.required()
	eg.POST("", api.create, authed...)
	eg.GET("/directory", api.directory, authed...)
	eg.PATCH("/:id", api.update, authed...)
	eg.PUT("/:id/capacity", api.setCapacity, authed...)
	eg.PUT("/:id/features", api.setFeatures, authed...)
	eg.POST("/:id/transitions", api.transition, authed...)
	eg.PUT("/:id/media/:kind", api.setMedia, authed...)
	eg.GET("/:id/program", api.program, authed...)
	eg.GET("/:id/memories", api.listMemories, authed...)
	eg.POST("/:id/memories", api.addMemory, authed...)
	eg.DELETE("/:id/memories/:memoryID", api.deleteMemory, authed...)
}

// Handlers

func (api *eventApi) create(ctx echo.Context) error {
	var data event.NewEvent
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	e, err := api.svc.Create(ctx.Request().Context(), principalOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *eventApi) query(ctx echo.Context) error {
	filter := new(event.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []event.Event{})
	}
	events, err := api.svc.List(ctx.Request().Context(), principalOf(ctx), *filter)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *eventApi) directory(ctx echo.Context) error {
	filter := new(event.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []event.DirectoryEntry{})
	}
	entries, err := api.svc.Directory(ctx.Request().Context(), principalOf(ctx), *filter)
	if err != nil {
		return errors.Wrap(err, "querying event directory")
	}
	if entries == nil {
		entries = []event.DirectoryEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	e, err := api.svc.Get(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting event")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *eventApi) update(ctx echo.Context) error {
	var data event.UpdateEvent
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	e, err := api.svc.Update(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *eventApi) setCapacity(ctx echo.Context) error {
	var data CapacityRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	e, err := api.svc.SetCapacity(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data.Capacity)
	if err != nil {
		return errors.Wrap(err, "setting capacity")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *eventApi) setFeatures(ctx echo.Context) error {
	var data event.Features
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	e, err := api.svc.SetFeatures(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "setting features")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *eventApi) transition(ctx echo.Context) error {
	var data TransitionRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	to, err := event.ParseState(data.State)
	if err != nil {
		return err
	}
	e, err := api.svc.Transition(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), to)
	if err != nil {
		return errors.Wrap(err, "transitioning event")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *eventApi) setMedia(ctx echo.Context) error {
	up, err := requireUpload(ctx, "file")
	if err != nil {
		return err
	}
	kind := event.MediaKind(ctx.Param("kind"))
	e, err := api.svc.SetMedia(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), kind, up)
	if err != nil {
		return errors.Wrap(err, "setting media")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *eventApi) program(ctx echo.Context) error {
	prog, err := api.svc.Program(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting program")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *eventApi) listMemories(ctx echo.Context) error {
	mems, err := api.svc.ListMemories(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing memories")
	}
	if mems == nil {
		mems = []event.Memory{}
	}
	return ctx.JSON(http.StatusOK, mems)
}

func (api *eventApi) addMemory(ctx echo.Context) error {
	up, err := requireUpload(ctx, "file")
	if err != nil {
		return err
	}
	mem, err := api.svc.AddMemory(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), ctx.FormValue("name"), up)
	if err != nil {
		return errors.Wrap(err, "adding memory")
	}
	return ctx.JSON(http.StatusCreated, mem)
}

func (api *eventApi) deleteMemory(ctx echo.Context) error {
	err := api.svc.DeleteMemory(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), ctx.Param("memoryID"))
	if err != nil {
		return errors.Wrap(err, "deleting memory")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	CapacityRequest struct {
		Capacity int `json:"capacity"`
	}

	TransitionRequest struct {
		State string `json:"state"`
	}
)
