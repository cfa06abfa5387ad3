package handler

import (
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ProductID int64  `json:"product_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{
			Error:     he.Message,
			Code:      string(he.Code),
			ProductID: he.ProductID,
			Retryable: he.Retryable,
		})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: "internal error",
		Code:  string(usecase.CodeStorageFailure),
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: string(usecase.CodeInvalidInput)})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: string(usecase.CodeUnauthorized)})
}

// ResolveOwner が入れた持ち主
func getOwnerFromContext(c echo.Context) (model.Owner, bool) {
	owner, ok := c.Get(middleware.CtxOwnerKey).(model.Owner)
	if !ok || owner.IsZero() {
		return model.Owner{}, false
	}
	return owner, true
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	userID, ok := c.Get(middleware.CtxUserIDKey).(int64)
	if !ok || userID <= 0 {
		return 0, false
	}
	return userID, true
}

func getSessionIDFromContext(c echo.Context) (string, bool) {
	sid, ok := c.Get(middleware.CtxSessionIDKey).(string)
	if !ok || sid == "" {
		return "", false
	}
	return sid, true
}
