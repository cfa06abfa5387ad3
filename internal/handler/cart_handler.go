package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	uc    *usecase.CartUsecase
	merge *usecase.SessionMergeUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase, merge *usecase.SessionMergeUsecase) *CartHandler {
	return &CartHandler{uc: uc, merge: merge}
}

type AddCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity *int64 `json:"quantity"`
}

// /cart, /cart/{id}, /cart/merge を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/cart")
	g.Use(middleware.ResolveOwner(cfg))

	g.GET("", h.getCart)
	g.POST("", h.addToCart)
	g.DELETE("", h.clearCart)
	g.POST("/merge", h.mergeSession)
	g.PATCH("/:id", h.patchItem)
	g.DELETE("/:id", h.deleteItem)
}

func (h *CartHandler) getCart(c echo.Context) error {
	owner, ok := getOwnerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.GetCart(c.Request().Context(), owner)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) addToCart(c echo.Context) error {
	owner, ok := getOwnerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req AddCartRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.AddItem(c.Request().Context(), owner, usecase.AddCartInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) patchItem(c echo.Context) error {
	owner, ok := getOwnerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id")
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Quantity == nil {
		return badRequest(c, "quantity required")
	}

	out, err := h.uc.UpdateQuantity(c.Request().Context(), owner, itemID, *req.Quantity)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) deleteItem(c echo.Context) error {
	owner, ok := getOwnerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid id")
	}

	out, err := h.uc.RemoveItem(c.Request().Context(), owner, itemID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) clearCart(c echo.Context) error {
	owner, ok := getOwnerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.uc.Clear(c.Request().Context(), owner); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "cleared"})
}

// ログイン直後に呼ぶ。Bearer と X-Session-ID の両方が必要。
func (h *CartHandler) mergeSession(c echo.Context) error {
	owner, ok := getOwnerFromContext(c)
	if !ok || !owner.IsAccount() {
		return unauthorized(c)
	}
	sid, ok := getSessionIDFromContext(c)
	if !ok {
		return badRequest(c, "session id required")
	}
	from, err := model.AnonymousOwner(sid)
	if err != nil {
		return badRequest(c, "invalid session id")
	}

	res, err := h.merge.Merge(c.Request().Context(), from, owner)
	if err != nil {
		return writeError(c, err)
	}

	cart, err := h.uc.GetCart(c.Request().Context(), owner)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"merge": res,
		"cart":  cart,
	})
}
