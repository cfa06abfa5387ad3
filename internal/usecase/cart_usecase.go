package usecase

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	"storefront/internal/infra/metrics"
	repo "storefront/internal/repository"
)

// CartUsecase は /cart の業務ロジックです。
// 操作はすべて持ち主（セッション or アカウント）単位で、今すぐ購入のデータには触れません。
type CartUsecase struct {
	cartItems    repo.CartItemRepository
	products     repo.ProductRepository
	clampToStock bool
}

func NewCartUsecase(
	cartItems repo.CartItemRepository,
	products repo.ProductRepository,
	clampToStock bool,
) *CartUsecase {
	return &CartUsecase{
		cartItems:    cartItems,
		products:     products,
		clampToStock: clampToStock,
	}
}

// price は実売価格（セール価格があればそちら）を表示時点で引き直したもの。
type CartItemResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type CartResponse struct {
	Items     []CartItemResponse `json:"items"`
	ItemCount int64              `json:"item_count"`
	LineCount int                `json:"line_count"`
	Subtotal  int64              `json:"subtotal"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

// 追加した明細の結果。在庫で丸めたら Clamped=true。
type AddedItem struct {
	CartItemID int64 `json:"cart_item_id"`
	ProductID  int64 `json:"product_id"`
	Quantity   int64 `json:"quantity"`
	Requested  int64 `json:"requested"`
	Clamped    bool  `json:"clamped"`
}

type AddCartOutput struct {
	CartResponse
	Added AddedItem `json:"added"`
}

// GetCart はカートの中身とサマリを返す。
func (u *CartUsecase) GetCart(ctx context.Context, owner model.Owner) (CartResponse, error) {
	if owner.IsZero() {
		return CartResponse{}, errUnauthorized()
	}
	return u.buildCartResponse(ctx, owner)
}

// AddItem はカートに追加（同一商品は数量加算）。
// 在庫を超える分は在庫数で頭打ちにする（在庫0のときは丸めない。確定時に弾く）。
func (u *CartUsecase) AddItem(ctx context.Context, owner model.Owner, in AddCartInput) (AddCartOutput, error) {
	if owner.IsZero() {
		return AddCartOutput{}, errUnauthorized()
	}
	if in.ProductID <= 0 {
		return AddCartOutput{}, errInvalidInput("invalid product_id")
	}
	if in.Quantity < 1 {
		return AddCartOutput{}, errInvalidInput("invalid quantity")
	}

	// 商品チェック（公開のみ）
	p, err := u.products.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return AddCartOutput{}, errInvalidInput("invalid product_id")
	}
	if err != nil {
		return AddCartOutput{}, errStorage(err)
	}
	if !p.IsActive {
		return AddCartOutput{}, errInvalidInput("product is not available")
	}

	var maxQty int64
	if u.clampToStock && p.Stock > 0 {
		maxQty = p.Stock
	}

	res, err := u.cartItems.AddQuantity(ctx, owner.Key(), in.ProductID, in.Quantity, maxQty)
	if err != nil {
		return AddCartOutput{}, errStorage(err)
	}
	metrics.CartMutationsTotal.WithLabelValues("add").Inc()

	cart, err := u.buildCartResponse(ctx, owner)
	if err != nil {
		return AddCartOutput{}, err
	}

	return AddCartOutput{
		CartResponse: cart,
		Added: AddedItem{
			CartItemID: res.Item.ID,
			ProductID:  res.Item.ProductID,
			Quantity:   res.Item.Quantity,
			Requested:  res.Requested,
			Clamped:    res.Item.Quantity < res.Requested,
		},
	}, nil
}

// UpdateQuantity は数量変更。0 は削除と同じ。
func (u *CartUsecase) UpdateQuantity(ctx context.Context, owner model.Owner, cartItemID int64, qty int64) (CartResponse, error) {
	if owner.IsZero() {
		return CartResponse{}, errUnauthorized()
	}
	if cartItemID <= 0 {
		return CartResponse{}, errInvalidInput("invalid id")
	}
	if qty < 0 {
		return CartResponse{}, errInvalidInput("invalid quantity")
	}
	if qty == 0 {
		return u.RemoveItem(ctx, owner, cartItemID)
	}

	if err := u.cartItems.UpdateQuantity(ctx, owner.Key(), cartItemID, qty); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartResponse{}, errNotFound("cart item not found")
		}
		return CartResponse{}, errStorage(err)
	}
	metrics.CartMutationsTotal.WithLabelValues("update").Inc()

	return u.buildCartResponse(ctx, owner)
}

// RemoveItem は明細削除。無い明細でも成功（冪等）。
func (u *CartUsecase) RemoveItem(ctx context.Context, owner model.Owner, cartItemID int64) (CartResponse, error) {
	if owner.IsZero() {
		return CartResponse{}, errUnauthorized()
	}
	if cartItemID <= 0 {
		return CartResponse{}, errInvalidInput("invalid id")
	}

	deleted, err := u.cartItems.DeleteByID(ctx, owner.Key(), cartItemID)
	if err != nil {
		return CartResponse{}, errStorage(err)
	}
	if deleted {
		metrics.CartMutationsTotal.WithLabelValues("remove").Inc()
	}

	return u.buildCartResponse(ctx, owner)
}

// Clear は持ち主の明細を全部消す。
func (u *CartUsecase) Clear(ctx context.Context, owner model.Owner) error {
	if owner.IsZero() {
		return errUnauthorized()
	}
	if _, err := u.cartItems.ClearByOwner(ctx, owner.Key()); err != nil {
		return errStorage(err)
	}
	metrics.CartMutationsTotal.WithLabelValues("clear").Inc()
	return nil
}

// 明細をまとめてCartResponseを作る。価格は毎回商品から引き直す。
func (u *CartUsecase) buildCartResponse(ctx context.Context, owner model.Owner) (CartResponse, error) {
	lines, err := u.cartItems.ListLines(ctx, owner.Key())
	if err != nil {
		return CartResponse{}, errStorage(err)
	}

	out := CartResponse{Items: make([]CartItemResponse, 0, len(lines))}
	for _, l := range lines {
		price := l.EffectivePrice()
		lineTotal := price * l.Quantity

		out.Items = append(out.Items, CartItemResponse{
			ID:        l.ID,
			ProductID: l.ProductID,
			Name:      l.Name,
			SKU:       l.SKU,
			Price:     price,
			Quantity:  l.Quantity,
			LineTotal: lineTotal,
		})
		out.ItemCount += l.Quantity
		out.Subtotal += lineTotal
	}
	out.LineCount = len(out.Items)

	return out, nil
}
