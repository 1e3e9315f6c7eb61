package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/user"
	"github.com/eventsoft/eventsoft/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)
	return &commandLine{
		usrRepo:     env.UserRepo,
		users:       env.Users,
		events:      env.Events,
		invitations: env.Invitations,
		out:         out,
	}, env, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if pwd, ok := tt.extra.(string); ok {
				return []byte(pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case err != nil:
				t.Errorf("cli.run() unexpected error = %v", err)
			case check != nil:
				check(t, tt)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	migrateRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "down", "version": // pass
		case "steps", "goto", "force":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a number", command)
			}
			if _, err := strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("%s: %q is not a number", command, args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "steps: no args", args: []string{"migrate", "steps"}, wantErrStr: "steps requires a number"},
		{name: "goto: non-int arg", args: []string{"migrate", "goto", "lol"}, wantErrStr: "goto: \"lol\" is not a number"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "steps", args: []string{"migrate", "steps", "-1"}},
		{name: "goto", args: []string{"migrate", "goto", "1"}},
		{name: "force", args: []string{"migrate", "force", "1"}},
		{name: "version", args: []string{"migrate", "version"}},
	}, nil)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env, _ := setup(t)
	usr, _ := env.CreateUser(t, user.RoleParticipant, "awe")

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "--username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "--username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "--username", usr.Email}, extra: "lmao"},
	}, func(t *testing.T, tt cliTest) {
		_, err := env.Users.Authenticate(context.Background(), usr.Username, tt.extra.(string))
		assert.NoError(t, err, "new password must be in use")
	})
}

func Test_commandLine_createSuperAdmin(t *testing.T) {
	cli, env, _ := setup(t)
	existing, _ := env.CreateUser(t, user.RoleEventAdmin, "promoted")

	runCLITests(t, cli, []cliTest{
		{name: "missing flags", args: []string{"createsuperadmin", "--username", "root"}, wantErr: errHelp},
		{
			name:  "new user",
			args:  []string{"createsuperadmin", "--username", "root", "--email", "root@example.com", "--national-id", "99887766"},
			extra: testutil.Password,
		},
		{
			name: "existing user",
			args: []string{
				"createsuperadmin", "--username", existing.Username, "--email", existing.Email, "--national-id", existing.NationalID,
			},
			extra: testutil.Password,
		},
	}, nil)

	for _, uname := range []string{"root", existing.Username} {
		usr, err := env.Users.Authenticate(context.Background(), uname, testutil.Password)
		require.NoError(t, err, uname)
		assert.True(t, usr.IsSuperAdmin, uname)
		assert.Equal(t, user.RoleSuperAdmin, usr.Role, uname)
	}
}

func Test_commandLine_lifecycle(t *testing.T) {
	cli, env, out := setup(t)
	_, owner := env.CreateUser(t, user.RoleEventAdmin, "owner")
	ended := env.CreateEvent(t, owner, 10)
	env.SetEventDates(t, ended.ID, time.Now().AddDate(0, 0, -5), time.Now().AddDate(0, 0, -2))
	running := env.CreateEvent(t, owner, 10)

	runCLITests(t, cli, []cliTest{
		{name: "finalize", args: []string{"finalize"}},
	}, nil)
	assert.Contains(t, out.String(), "1 event(s) finalized")

	got, err := env.EventRepo.GetEvent(context.Background(), ended.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StateFinalized, got.State)
	got, err = env.EventRepo.GetEvent(context.Background(), running.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StateActive, got.State)

	// still within the grace period
	runCLITests(t, cli, []cliTest{
		{name: "archive", args: []string{"archive", "--grace-days", "30"}},
	}, nil)
	assert.Contains(t, out.String(), "0 event(s) archived")
}

func Test_commandLine_issueCode(t *testing.T) {
	cli, env, out := setup(t)
	super, _ := env.CreateUser(t, user.RoleSuperAdmin, "root")
	admin, _ := env.CreateUser(t, user.RoleEventAdmin, "organizer")

	runCLITests(t, cli, []cliTest{
		{name: "no issuer", args: []string{"issuecode"}, wantErr: errHelp},
		{name: "unknown issuer", args: []string{"issuecode", "--issuer", "ghost"}, wantErr: user.ErrNotFound},
		{name: "not a superadmin", args: []string{"issuecode", "--issuer", admin.Username}, wantErrStr: "permission denied"},
		{name: "issue and mail", args: []string{"issuecode", "--issuer", super.Username, "--email", "nueva@example.com", "--ttl", "2h"}},
	}, nil)

	codes, err := env.Invitations.List(context.Background(), env.PrincipalOf(t, super.ID))
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, invitation.StateActive, codes[0].State)
	assert.Len(t, codes[0].DispatchLog, 1)
	assert.Contains(t, out.String(), codes[0].Code)
	assert.Len(t, env.Mail.SentTo("nueva@example.com", "invitation"), 1)
}
