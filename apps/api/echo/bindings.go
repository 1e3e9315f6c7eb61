package echoapi

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eventsoft/eventsoft/core"
)

const (
	// multipart requests carry their JSON payload in this form field, next to the files.
	dataField     = "data"
	maxUploadSize = 10 << 20
)

func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// bindBody decodes the JSON payload of the request into dest, whether sent as the body or as a multipart field.
func bindBody(ctx echo.Context, dest interface{}) error {
	if !isMultipart(ctx) {
		if err := ctx.Bind(dest); err != nil {
			return core.NewValidationError(errors.Wrap(err, "malformed body"))
		}
		return nil
	}
	data := ctx.FormValue(dataField)
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: dataField, Error: "malformed JSON"})
	}
	return nil
}

// bindUpload reads the file sent in the given multipart field; it returns nil when there is none.
func bindUpload(ctx echo.Context, field string) (*core.Upload, error) {
	if !isMultipart(ctx) {
		return nil, nil
	}
	fh, err := ctx.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading multipart form")
	}
	if fh.Size > maxUploadSize {
		return nil, core.NewFieldError(core.KindFieldInvalid, field, "file exceeds "+strconv.Itoa(maxUploadSize>>20)+" MB")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	content, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "reading uploaded file")
	}
	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	return &core.Upload{Filename: fh.Filename, ContentType: contentType, Content: content}, nil
}

// requireUpload is bindUpload for mandatory files.
func requireUpload(ctx echo.Context, field string) (*core.Upload, error) {
	up, err := bindUpload(ctx, field)
	if err != nil {
		return nil, err
	}
	if up.Empty() {
		return nil, core.NewFieldError(core.KindFieldRequired, field, "this field is required")
	}
	return up, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(ctx echo.Context, name string) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.NewFieldError(core.KindFieldInvalid, name, "must be a number")
	}
	return n, nil
}

type SuccessResponse struct {
	Success string `json:"success"`
}
