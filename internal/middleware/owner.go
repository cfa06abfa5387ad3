package middleware

import (
	"errors"
	"net/http"

	"storefront/internal/config"
	"storefront/internal/domain/model"

	"github.com/labstack/echo/v4"
)

const (
	CtxOwnerKey     = "owner"      // model.Owner
	CtxSessionIDKey = "session_id" // string

	SessionIDHeader = "X-Session-ID"
)

// ResolveOwner はリクエストの持ち主を決める。
// 正しいBearerがあればアカウント、無ければ X-Session-ID のセッション、どちらも無ければ401。
// Bearerが不正なときはセッションに落とさず401にする。
func ResolveOwner(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sid := c.Request().Header.Get(SessionIDHeader)
			if sid != "" {
				// マージ用に覚えておく
				if _, err := model.AnonymousOwner(sid); err != nil {
					return c.JSON(http.StatusBadRequest, errorJSON("INVALID_INPUT", "invalid session id"))
				}
				c.Set(CtxSessionIDKey, sid)
			}

			userID, role, err := parseBearer(c, cfg.JWTSecret)
			switch {
			case err == nil:
				owner, err := model.AccountOwner(userID)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "unauthorized"))
				}
				c.Set(CtxUserIDKey, userID)
				c.Set(CtxUserRoleKey, role)
				c.Set(CtxOwnerKey, owner)

			case errors.Is(err, errNoBearer):
				if sid == "" {
					return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "session id or bearer token required"))
				}
				owner, _ := model.AnonymousOwner(sid)
				c.Set(CtxOwnerKey, owner)

			default:
				return c.JSON(http.StatusUnauthorized, errorJSON("UNAUTHORIZED", "unauthorized"))
			}

			return next(c)
		}
	}
}
