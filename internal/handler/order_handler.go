package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

const IdempotencyKeyHeader = "X-Idempotency-Key"

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

type CustomerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	ShippingAddress string `json:"shipping_address"`
}

type CheckoutRequest struct {
	Customer CustomerRequest `json:"customer"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	owner := middleware.ResolveOwner(cfg)

	e.POST("/checkout", h.checkoutCart, owner)
	e.POST("/buy-now/:token/checkout", h.checkoutBuyNow, owner)

	g := e.Group("/orders")
	g.Use(owner)
	g.GET("", h.list)
	g.GET("/:order_number", h.detail)
}

func (h *OrderHandler) checkoutCart(c echo.Context) error {
	return h.checkout(c, usecase.CartSource())
}

func (h *OrderHandler) checkoutBuyNow(c echo.Context) error {
	return h.checkout(c, usecase.BuyNowSource(c.Param("token")))
}

func (h *OrderHandler) checkout(c echo.Context, src usecase.CheckoutSource) error {
	owner, ok := getOwnerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
	idemKey := c.Request().Header.Get(IdempotencyKeyHeader)

	out, err := h.uc.PlaceOrder(c.Request().Context(), owner, src, usecase.PlaceOrderInput{
		Customer: usecase.CustomerInput{
			Name:            req.Customer.Name,
			Email:           req.Customer.Email,
			Phone:           req.Customer.Phone,
			ShippingAddress: req.Customer.ShippingAddress,
		},
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	owner, ok := getOwnerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	// page（default 1）
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid page")
		}
		page = p
	}

	// limit（default 20）
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return badRequest(c, "invalid limit")
		}
		limit = l
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), owner, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	owner, ok := getOwnerFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.GetMyOrder(c.Request().Context(), owner, c.Param("order_number"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
