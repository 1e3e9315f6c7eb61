package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/eventsoft/eventsoft/core"
)

// A password reset link carries the user's ID and a token "<issued>.<mac>", where issued is the
// Unix time of issue in base 36. The MAC covers the password hash and the last login, so the
// token is spent once the password changes or the user logs in.

const resetPurpose = "eventsoft/password-reset"

var (
	// errors
	ErrResetLinkInvalid = core.NewFieldError(core.KindFieldInvalid, "token", "invalid password reset link")
	ErrResetLinkExpired = core.NewFieldError(core.KindFieldInvalid, "token", "the password reset link has expired")
)

// ResetUID is the user reference embedded in a password reset link.
func ResetUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func userIDFromResetUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil || len(id) == 0 {
		return "", core.NewFieldError(core.KindFieldInvalid, "uid", "invalid user ID")
	}
	return string(id), nil
}

// IssueResetToken returns a token valid for Conf.PasswordResetTimeoutDelta.
func IssueResetToken(usr User) string {
	issued := core.Now().Unix()
	return strconv.FormatInt(issued, 36) + "." + resetMAC(usr, issued)
}

func checkResetToken(usr User, token string) error {
	ts, mac, ok := strings.Cut(token, ".")
	if !ok || mac == "" {
		return ErrResetLinkInvalid
	}
	issued, err := strconv.ParseInt(ts, 36, 64)
	if err != nil {
		return ErrResetLinkInvalid
	}
	if !hmac.Equal([]byte(mac), []byte(resetMAC(usr, issued))) {
		return ErrResetLinkInvalid
	}

	age := core.Now().Sub(time.Unix(issued, 0))
	switch {
	case age < 0:
		return ErrResetLinkInvalid
	case age > core.Conf.PasswordResetTimeoutDelta:
		return ErrResetLinkExpired
	}
	return nil
}

func resetMAC(usr User, issued int64) string {
	h := hmac.New(sha256.New, []byte(core.Conf.SecretKey))
	h.Write([]byte(resetPurpose))
	h.Write([]byte{0})
	h.Write([]byte(usr.ID))
	h.Write([]byte{0})
	h.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		h.Write([]byte(strconv.FormatInt(usr.LastLogin.Unix(), 10)))
	}
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(issued, 10)))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
