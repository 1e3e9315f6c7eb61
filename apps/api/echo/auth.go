package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/user"
)

var (
	// appJWTConfig is the default JWT auth middleware config.
	appJWTConfig = middleware.JWTConfig{
		SigningKey:    []byte(core.Conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "userToken",
		Claims:        new(Claims),
	}
	contextUserKey      = "user"
	contextPrincipalKey = "principal"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64     `json:"oriat,omitempty"`
	Username     string    `json:"username,omitempty"`
	Role         user.Role `json:"role,omitempty"`
	ProfileID    string    `json:"profile_id,omitempty"`
}

func GetUserClaims(usr user.User, p user.Principal, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    core.Conf.AppName,
			Subject:   usr.ID,
			Audience:  "EventSoft",
			ExpiresAt: now.Add(core.Conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     usr.Username,
		Role:         p.Role,
		ProfileID:    p.ProfileID,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(appJWTConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(appJWTConfig.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

// authenticator resolves the acting principal of a request from its bearer token.
type authenticator struct {
	svc      *user.Service
	jwt      echo.MiddlewareFunc
	optional echo.MiddlewareFunc
}

func newAuthenticator(svc *user.Service) *authenticator {
	optConf := appJWTConfig
	optConf.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	return &authenticator{
		svc:      svc,
		jwt:      middleware.JWTWithConfig(appJWTConfig),
		optional: middleware.JWTWithConfig(optConf),
	}
}

// required rejects anonymous requests and loads the principal of authenticated ones.
func (a *authenticator) required() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{a.jwt, a.loadPrincipal}
}

// anyone lets anonymous requests through as the zero Principal.
func (a *authenticator) anyone() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{a.optional, a.loadPrincipal}
}

func (a *authenticator) loadPrincipal(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil { // anonymous
			return next(ctx)
		}
		usr, err := getContextUser(ctx, a.svc, claims)
		if err != nil {
			return err
		}
		if !usr.IsActive {
			return errAccountDeactivated
		}
		p, err := a.svc.PrincipalOf(ctx.Request().Context(), usr)
		if err != nil {
			return errors.Wrap(err, "getting principal")
		}
		ctx.Set(contextPrincipalKey, p)
		return next(ctx)
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(appJWTConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc *user.Service, claims Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// principalOf returns the principal acting on the request; the zero value is the anonymous visitor.
func principalOf(ctx echo.Context) user.Principal {
	p, _ := ctx.Get(contextPrincipalKey).(user.Principal)
	return p
}

func refreshToken(ctx echo.Context, svc *user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	usr, err := getContextUser(ctx, svc, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(core.Conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := GetUserClaims(usr, principalOf(ctx), claims.OrigIssuedAt)
	token, err := GenerateToken(newClaims)
	return token, errors.Wrap(err, "generating token")
}
