package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core/enrollment"
)

const (
	paymentProofField = "payment_proof"
	attachmentField   = "attachment"
)

type enrollmentApi struct {
	svc *enrollment.Service
}

func registerEnrollmentAPI(g *echo.Group, auth *authenticator, svc *enrollment.Service) {
	api := enrollmentApi{svc: svc}

	// anyone may enroll: the subject is identified by the submitted data, not by the session
	g.POST("/events/:id/enrollments", api.enroll, auth.anyone()...)

	authed := auth.required()
	g.GET("/events/:id/enrollments", api.query, authed...)
	g.GET("/events/:id/statistics", api.statistics, authed...)

	eg := g.Group("/enrollments")
	eg.GET("/mine", api.mine, authed...)
	eg.GET("/:id", api.retrieve, authed...)
	eg.PATCH("/:id", api.editOwn, authed...)
	eg.POST("/:id/approve", api.approve, authed...)
	eg.POST("/:id/reject", api.reject, authed...)
	eg.POST("/:id/confirm", api.confirm, authed...)
	eg.POST("/:id/cancel", api.cancel, authed...)
}

// Handlers

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	var data enrollment.EnrollRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	data.EventID = ctx.Param("id")

	var err error
	if data.PaymentProof, err = bindUpload(ctx, paymentProofField); err != nil {
		return err
	}
	if data.Attachment, err = bindUpload(ctx, attachmentField); err != nil {
		return err
	}

	enr, err := api.svc.Enroll(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	filter := new(enrollment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []enrollment.Enrollment{})
	}
	enrs, err := api.svc.List(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), *filter)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	return ctx.JSON(http.StatusOK, nonNilEnrollments(enrs))
}

func (api *enrollmentApi) statistics(ctx echo.Context) error {
	stats, err := api.svc.Statistics(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *enrollmentApi) mine(ctx echo.Context) error {
	enrs, err := api.svc.Mine(ctx.Request().Context(), principalOf(ctx))
	if err != nil {
		return errors.Wrap(err, "listing own enrollments")
	}
	return ctx.JSON(http.StatusOK, nonNilEnrollments(enrs))
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	enr, err := api.svc.Get(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) editOwn(ctx echo.Context) error {
	var data enrollment.SelfEdit
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	var err error
	if data.PaymentProof, err = bindUpload(ctx, paymentProofField); err != nil {
		return err
	}
	if data.Attachment, err = bindUpload(ctx, attachmentField); err != nil {
		return err
	}

	enr, err := api.svc.EditOwn(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "editing enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) approve(ctx echo.Context) error {
	enr, err := api.svc.Approve(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) reject(ctx echo.Context) error {
	var data RejectRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	enr, err := api.svc.Reject(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) confirm(ctx echo.Context) error {
	enr, err := api.svc.Confirm(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "confirming enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) cancel(ctx echo.Context) error {
	enr, err := api.svc.Cancel(ctx.Request().Context(), principalOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func nonNilEnrollments(enrs []enrollment.Enrollment) []enrollment.Enrollment {
	if enrs == nil {
		return []enrollment.Enrollment{}
	}
	return enrs
}

type RejectRequest struct {
	Reason string `json:"reason"`
}
