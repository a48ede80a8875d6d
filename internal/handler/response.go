package handler

import (
	"errors"
	"net/http"

	"shopapi/internal/middleware"
	"shopapi/internal/usecase"
	"shopapi/internal/validator"

	"github.com/labstack/echo/v4"
)

type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func errorJSON(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Error: errorBody{Message: msg}}
}

// {"success": true, ...fields}
func writeOK(c echo.Context, status int, fields echo.Map) error {
	body := echo.Map{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	return c.JSON(status, body)
}

// 開発環境（e.Debug）のときだけ元のエラーをdetailに出す
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	var ve *validator.Error
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, errorJSON(ve.Message))
	}

	if he, ok := usecase.AsHTTPError(err); ok {
		body := errorJSON(he.Message)
		if c.Echo().Debug && he.Cause != nil {
			body.Error.Detail = he.Cause.Error()
		}
		return c.JSON(he.Status, body)
	}

	//500
	body := errorJSON("internal error")
	if c.Echo().Debug {
		body.Error.Detail = err.Error()
	}
	return c.JSON(http.StatusInternalServerError, body)
}

// echo本体のエラー（404ルート・405・bodyサイズ超過など）も同じ形で返す
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		body := errorJSON(msg)
		if c.Echo().Debug && he.Internal != nil {
			body.Error.Detail = he.Internal.Error()
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, body)
		return
	}

	_ = writeError(c, err)
}

// bind + validate。失敗したらそのままwriteErrorに渡せるエラーを返す
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return usecase.WrapHTTPError(http.StatusBadRequest, "invalid body", err)
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	return nil
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	id, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
}
