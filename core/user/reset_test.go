package user

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/eventsoft/eventsoft/core"
)

func TestCheckResetToken(t *testing.T) {
	now := time.Now()
	usr := User{
		ID:         "6f1c2a4e-0d0b-4c43-9d51-2a1b7c3f8e90",
		Username:   "tester",
		Email:      "t@test.test",
		NationalID: "1234567",
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastLogin:  now.Add(-time.Hour),
	}
	if err := usr.SetPassword("Zq8#Lm2$Wv"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	valid := IssueResetToken(usr)

	at := func(d time.Duration) string {
		core.NowFunc = func() time.Time { return now.Add(d) }
		defer func() { core.NowFunc = time.Now }()
		return IssueResetToken(usr)
	}
	expired := at(-core.Conf.PasswordResetTimeoutDelta - time.Minute)
	future := at(time.Hour)

	otherUsr := usr
	otherUsr.ID = "another"
	loggedIn := usr
	loggedIn.LastLogin = now
	newPassword := usr
	if err := newPassword.SetPassword("Nu3va#Clave"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	ts, mac, _ := strings.Cut(valid, ".")
	issued, _ := strconv.ParseInt(ts, 36, 64)

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: ErrResetLinkInvalid},
		{name: "no separator", usr: usr, token: "lmaooolol", wantErr: ErrResetLinkInvalid},
		{name: "empty mac", usr: usr, token: ts + ".", wantErr: ErrResetLinkInvalid},
		{name: "bad timestamp", usr: usr, token: "??." + mac, wantErr: ErrResetLinkInvalid},
		{name: "shifted timestamp", usr: usr, token: strconv.FormatInt(issued-1, 36) + "." + mac, wantErr: ErrResetLinkInvalid},
		{name: "other user", usr: otherUsr, token: valid, wantErr: ErrResetLinkInvalid},
		{name: "after login", usr: loggedIn, token: valid, wantErr: ErrResetLinkInvalid},
		{name: "after password change", usr: newPassword, token: valid, wantErr: ErrResetLinkInvalid},
		{name: "issued in the future", usr: usr, token: future, wantErr: ErrResetLinkInvalid},
		{name: "expired", usr: usr, token: expired, wantErr: ErrResetLinkExpired},
		{name: "valid", usr: usr, token: valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := checkResetToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("checkResetToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResetUID(t *testing.T) {
	usr := User{ID: "6f1c2a4e-0d0b-4c43-9d51-2a1b7c3f8e90"}
	id, err := userIDFromResetUID(ResetUID(usr))
	if err != nil || id != usr.ID {
		t.Errorf("userIDFromResetUID(ResetUID()) = %q, %v", id, err)
	}
	for _, uid := range []string{"", "***"} {
		if _, err = userIDFromResetUID(uid); !core.IsKind(err, core.KindFieldInvalid) {
			t.Errorf("userIDFromResetUID(%q) error = %v, want kind %v", uid, err, core.KindFieldInvalid)
		}
	}
}
