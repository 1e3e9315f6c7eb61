package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/user"
)

type invitationApi struct {
	svc   *invitation.Service
	users *user.Service
}

func registerInvitationAPI(g *echo.Group, auth *authenticator, svc *invitation.Service, users *user.Service) {
	api := invitationApi{svc: svc, users: users}

	ig := g.Group("/invitations")

	// newcomers redeem their code anonymously
	ig.POST("/redeem", api.redeem)

	authed := auth.required()
	ig.GET("", api.query, authed...)
	ig.POST("", api.issue, authed...)
	ig.POST("/:code/dispatch", api.dispatch, authed...)
}

// Handlers

func (api *invitationApi) issue(ctx echo.Context) error {
	var data IssueCodeRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	ttl := core.Conf.InvitationTTL
	if data.TTLHours > 0 {
		ttl = time.Duration(data.TTLHours) * time.Hour
	}
	c, err := api.svc.Issue(ctx.Request().Context(), principalOf(ctx), ttl)
	if err != nil {
		return errors.Wrap(err, "issuing code")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *invitationApi) dispatch(ctx echo.Context) error {
	var data DispatchCodeRequest
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.Dispatch(ctx.Request().Context(), principalOf(ctx), ctx.Param("code"), data.Email)
	if err != nil {
		return errors.Wrap(err, "dispatching code")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *invitationApi) query(ctx echo.Context) error {
	codes, err := api.svc.List(ctx.Request().Context(), principalOf(ctx))
	if err != nil {
		return errors.Wrap(err, "listing codes")
	}
	if codes == nil {
		codes = []invitation.Code{}
	}
	return ctx.JSON(http.StatusOK, codes)
}

// redeem creates the newcomer's account and logs them in.
func (api *invitationApi) redeem(ctx echo.Context) error {
	var data invitation.Redemption
	if err := bindBody(ctx, &data); err != nil {
		return err
	}
	usr, err := api.svc.Redeem(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "redeeming code")
	}
	resp, err := newLoginResponse(ctx, api.users, usr)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, resp)
}

type (
	IssueCodeRequest struct {
		// TTLHours overrides the configured validity of the code.
		TTLHours int `json:"ttl_hours"`
	}

	DispatchCodeRequest struct {
		Email string `json:"email"`
	}
)
