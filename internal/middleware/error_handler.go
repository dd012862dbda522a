package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/apperr"
)

// ErrorHandler is installed as echo's HTTPErrorHandler.  Errors that
// handlers return instead of writing an envelope themselves end up here and
// are rendered through apperr.Classify.  Echo's own HTTP errors (404 route,
// 405 method, bind failures) keep their status and message.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	body := echo.Map{"success": false}
	status := http.StatusInternalServerError

	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		if he.Internal != nil {
			c.Logger().Debugf("http error: %v", he.Internal)
		}
		if m, ok := he.Message.(string); ok {
			body["message"] = m
		} else {
			body["message"] = fmt.Sprint(he.Message)
		}
	} else {
		cl := apperr.Classify(err)
		status = cl.Status
		body["message"] = cl.Message
		body["error"] = cl.Code
		if len(cl.Fields) > 0 {
			body["errors"] = cl.Fields
		}
		if status >= http.StatusInternalServerError {
			c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		}
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		c.Logger().Error(werr)
	}
}
