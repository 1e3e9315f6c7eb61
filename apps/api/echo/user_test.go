package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/eventsoft/eventsoft/apps/api/echo"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/tests"
)

func Test_userApi_login(t *testing.T) {
	app, env := setup(t)
	usr, _ := env.CreateUser(t, user.RoleEventAdmin, "organizer")

	type loginData struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	authFailed := marchallObj(t, httpErr{Error: "authentication failed", Kind: "NotAuthenticated"})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "missing fields",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     marchallObj(t, loginData{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"username": "this field is required",
				"password": "this field is required",
			}),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     marchallObj(t, loginData{Username: usr.Username, Password: "nope"}),
			wantCode: http.StatusUnauthorized,
			wantData: authFailed,
		},
		{
			name:     "unknown user",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     marchallObj(t, loginData{Username: "ghost", Password: testutil.Password}),
			wantCode: http.StatusUnauthorized,
			wantData: authFailed,
		},
	})

	t.Run("success by email", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", marchallObj(t, loginData{Username: usr.Email, Password: testutil.Password}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp echoapi.LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		require.NotNil(t, resp.Principal)
		assert.Equal(t, usr.ID, resp.Principal.UserID)
		assert.Equal(t, user.RoleEventAdmin, resp.Principal.Role)
		assert.NotEmpty(t, resp.Principal.ProfileID)

		// the issued token opens authenticated routes
		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var me echoapi.MeResponse
		unmarshal(t, rec, &me)
		assert.Equal(t, usr.Username, me.User.Username)
		assert.Equal(t, *resp.Principal, me.Principal)
	})

	t.Run("deactivated account", func(t *testing.T) {
		inactive, _ := env.CreateUser(t, user.RoleParticipant, "inactive")
		inactive.IsActive = false
		_, err := env.UserRepo.UpdateUser(context.Background(), inactive)
		require.NoError(t, err)

		req, rec := newRequest(http.MethodPost, "/v1/users/login", marchallObj(t, loginData{Username: inactive.Username, Password: testutil.Password}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated", Kind: "Forbidden"}),
		}, rec)
	})
}

func Test_userApi_authentication(t *testing.T) {
	app, env := setup(t)
	usr, p := env.CreateUser(t, user.RoleParticipant, "someone")
	token := getToken(t, env, p)

	ghostToken, err := echoapi.GenerateToken(echoapi.GetUserClaims(user.User{ID: "ghost", Username: "ghost"}, user.Principal{UserID: "ghost", Role: user.RoleSuperAdmin}))
	require.NoError(t, err)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "missing or malformed jwt", Kind: "NotAuthenticated"}),
		},
		{
			name:     "garbage token",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			token:    "not-a-jwt",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "token of a deleted user",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			token:    ghostToken,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
	})

	t.Run("valid token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var me echoapi.MeResponse
		unmarshal(t, rec, &me)
		assert.Equal(t, usr.ID, me.User.ID)
		assert.Equal(t, p, me.Principal)
	})
}

func Test_userApi_query(t *testing.T) {
	app, env := setup(t)
	_, super := env.CreateUser(t, user.RoleSuperAdmin, "root")
	_, admin := env.CreateUser(t, user.RoleEventAdmin, "organizer")
	evaluator, _ := env.CreateUser(t, user.RoleEvaluator, "judge")

	runHTTPTests(t, app, []httpTest{
		{
			name:     "event admin",
			method:   http.MethodGet,
			path:     "/v1/users",
			token:    getToken(t, env, admin),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied", Kind: "Forbidden"}),
		},
		{
			name:     "superadmin no match",
			method:   http.MethodGet,
			path:     "/v1/users?search=nobody-here",
			token:    getToken(t, env, super),
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
		{
			name:     "roles",
			method:   http.MethodGet,
			path:     "/v1/users/roles",
			token:    getToken(t, env, super),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, user.AllRoles),
		},
	})

	t.Run("superadmin by role", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users?role="+string(user.RoleEvaluator), getToken(t, env, super))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var users []user.User
		unmarshal(t, rec, &users)
		require.Len(t, users, 1)
		assert.Equal(t, evaluator.ID, users[0].ID)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app, env := setup(t)
	usr, _ := env.CreateUser(t, user.RoleAssistant, "forgetful")

	for _, email := range []string{usr.Email, "unknown@example.com"} {
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, map[string]string{"email": email}))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, email)
	}
	assert.Len(t, env.Mail.SentTo(usr.Email, "password_reset"), 1)
	assert.Empty(t, env.Mail.SentTo("unknown@example.com", "password_reset"))

	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm", marchallObj(t, user.ResetUserPassword{
		Token: "bad", UID: "bad", Password: "Nu3va#Clave", PasswordConfirm: "Nu3va#Clave",
	}))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}
