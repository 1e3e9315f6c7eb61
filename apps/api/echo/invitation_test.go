package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/eventsoft/eventsoft/apps/api/echo"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/tests"
)

func newRedemption(code, username string) invitation.Redemption {
	return invitation.Redemption{
		Code: code,
		NewUser: user.NewUser{
			Username:        username,
			Email:           username + "@example.com",
			NationalID:      "55" + username[len(username)-6:],
			Role:            user.RoleParticipant,
			GivenName:       "Nueva",
			FamilyName:      "Organizadora",
			Password:        testutil.Password,
			PasswordConfirm: testutil.Password,
		},
	}
}

func Test_invitationApi(t *testing.T) {
	app, env := setup(t)
	_, super := env.CreateUser(t, user.RoleSuperAdmin, "root")
	_, admin := env.CreateUser(t, user.RoleEventAdmin, "organizer")
	token := getToken(t, env, super)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "event admin cannot issue",
			method:   http.MethodPost,
			path:     "/v1/invitations",
			body:     []byte(`{}`),
			token:    getToken(t, env, admin),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown code",
			method:   http.MethodPost,
			path:     "/v1/invitations/redeem",
			body:     marchallObj(t, newRedemption("nope", "admin000001")),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "unknown invitation code", Kind: "CodeUnknown", Field: "code"}),
		},
	})

	var code invitation.Code
	t.Run("issue", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/invitations", token, []byte(`{"ttl_hours":2}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &code)
		assert.NotEmpty(t, code.Code)
		assert.Equal(t, user.RoleEventAdmin, code.TargetRole)
		assert.Equal(t, invitation.StateActive, code.State)
	})

	t.Run("dispatch", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/invitations/"+code.Code+"/dispatch", token, []byte(`{"email":"futura@example.com"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, env.Mail.SentTo("futura@example.com", "invitation"), 1)
	})

	t.Run("redeem", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/invitations/redeem", marchallObj(t, newRedemption(code.Code, "admin000002")))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		require.NotNil(t, resp.Principal)
		assert.Equal(t, user.RoleEventAdmin, resp.Principal.Role)

		// the newcomer may create events right away
		req, rec = newAuthRequest(http.MethodPost, "/v1/events", resp.Token, marchallObj(t, testutil.NewEvent(10)))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("redeem twice", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/invitations/redeem", marchallObj(t, newRedemption(code.Code, "admin000003")))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{
				Error: "the invitation code has already been used", Kind: "StateFinal", Field: "code",
			}),
		}, rec)
	})

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/invitations", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var codes []invitation.Code
		unmarshal(t, rec, &codes)
		require.Len(t, codes, 1)
		assert.Equal(t, invitation.StateConsumed, codes[0].State)
	})
}
