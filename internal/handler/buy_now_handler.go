package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /buy-now のHTTP。カートとは別物。
type BuyNowHandler struct {
	uc *usecase.BuyNowUsecase
}

func NewBuyNowHandler(uc *usecase.BuyNowUsecase) *BuyNowHandler {
	return &BuyNowHandler{uc: uc}
}

type BuyNowLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// 1商品なら product_id/quantity、複数なら items
type CreateBuyNowRequest struct {
	Token     string              `json:"token"`
	ProductID int64               `json:"product_id"`
	Quantity  int64               `json:"quantity"`
	Items     []BuyNowLineRequest `json:"items"`
}

func (h *BuyNowHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/buy-now", h.create)
	e.GET("/buy-now/:token", h.get)
}

func (h *BuyNowHandler) create(c echo.Context) error {
	var req CreateBuyNowRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	lines := make([]usecase.BuyNowLineInput, 0, len(req.Items)+1)
	if len(req.Items) == 0 {
		lines = append(lines, usecase.BuyNowLineInput{ProductID: req.ProductID, Quantity: req.Quantity})
	} else {
		if req.ProductID != 0 {
			return badRequest(c, "use either product_id or items")
		}
		for _, it := range req.Items {
			lines = append(lines, usecase.BuyNowLineInput{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	}

	out, err := h.uc.Create(c.Request().Context(), usecase.CreateBuyNowInput{
		Token: req.Token,
		Items: lines,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

func (h *BuyNowHandler) get(c echo.Context) error {
	out, err := h.uc.Get(c.Request().Context(), c.Param("token"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
