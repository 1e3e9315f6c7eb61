package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired     = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
)

// kindStatus maps error kinds to HTTP status codes; unlisted kinds are server errors.
var kindStatus = map[core.Kind]int{
	core.KindNotAuthenticated: http.StatusUnauthorized,
	core.KindForbidden:        http.StatusForbidden,
	core.KindNotOwner:         http.StatusForbidden,

	core.KindFeatureDisabled:     http.StatusConflict,
	core.KindEventClosed:         http.StatusConflict,
	core.KindStateFrozen:         http.StatusConflict,
	core.KindStateFinal:          http.StatusConflict,
	core.KindInvalidTransition:   http.StatusConflict,
	core.KindCapacityExhausted:   http.StatusConflict,
	core.KindAlreadyEnrolled:     http.StatusConflict,
	core.KindDuplicateNaturalKey: http.StatusConflict,
	core.KindCriterionInUse:      http.StatusConflict,

	core.KindPaymentProofMissing: http.StatusBadRequest,
	core.KindFieldRequired:       http.StatusBadRequest,
	core.KindFieldInvalid:        http.StatusBadRequest,
	core.KindReasonRequired:      http.StatusBadRequest,
	core.KindWeightNonPositive:   http.StatusBadRequest,

	core.KindNotFound:    http.StatusNotFound,
	core.KindCodeUnknown: http.StatusNotFound,
	core.KindCodeExpired: http.StatusGone,

	core.KindUnavailable: http.StatusServiceUnavailable,
}

// ErrorResponse is the body of a failed request, unless it failed on field validation.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		var (
			httpErr *echo.HTTPError
			vErrs   validator.ValidationErrors
			valErr  *core.ValidationError
			domErr  *core.Error
		)
		switch {
		case errors.As(err, &httpErr):
			if httpErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = ErrorResponse{Error: httpErr.Message.(string), Kind: core.KindNotAuthenticated.String()}
				break
			}
			if httpErr.Internal != nil {
				if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
					httpErr = herr
				}
			}
			code = httpErr.Code
			if m, ok := httpErr.Message.(string); ok {
				message = ErrorResponse{Error: m}
			} else {
				message = httpErr.Message
			}
		case errors.As(err, &vErrs):
			fldErrs := make(map[string]string, len(vErrs))
			for _, vErr := range vErrs {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case errors.As(err, &valErr):
			if valErr.Fields != nil {
				fldErrs := make(map[string]string, len(valErr.Fields))
				for _, fErr := range valErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = ErrorResponse{Error: valErr.Error(), Kind: core.KindFieldInvalid.String()}
			}
			code = http.StatusBadRequest
		case errors.As(err, &domErr) && kindStatus[domErr.Kind] != 0:
			code = kindStatus[domErr.Kind]
			msg := domErr.Msg
			if msg == "" || domErr.Kind == core.KindUnavailable {
				msg = http.StatusText(code)
			}
			message = ErrorResponse{Error: msg, Kind: domErr.Kind.String(), Field: domErr.Field}
			if domErr.Kind == core.KindUnavailable {
				logger.Warn(msg, err, principalOf(ctx))
			}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = ErrorResponse{Error: msg}

			logger.Error(msg, errors.Wrap(err, msg), principalOf(ctx))

			if ctx.Echo().Debug {
				message = ErrorResponse{Error: err.Error()}
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
