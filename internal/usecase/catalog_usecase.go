package usecase

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// CatalogUsecase は商品の読み取り専用窓口。
// 返す在庫数は参考値で、確定は注文時のトランザクションで行う。
type CatalogUsecase struct {
	products repo.ProductRepository
}

func NewCatalogUsecase(products repo.ProductRepository) *CatalogUsecase {
	return &CatalogUsecase{products: products}
}

type ProductOutput struct {
	ID             int64  `json:"id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Price          int64  `json:"price"`
	SalePrice      *int64 `json:"sale_price,omitempty"`
	EffectivePrice int64  `json:"effective_price"`
	Stock          int64  `json:"stock_quantity"`
	IsActive       bool   `json:"is_active"`
}

// GetProduct は商品を返す（存在しなければ NotFound）。公開状態は呼び出し側で判断する。
func (u *CatalogUsecase) GetProduct(ctx context.Context, id int64) (model.Product, error) {
	if id <= 0 {
		return model.Product{}, errInvalidInput("invalid product_id")
	}

	p, err := u.products.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, errNotFound("product not found")
	}
	if err != nil {
		return model.Product{}, errStorage(err)
	}
	return p, nil
}

// 公開中の商品だけを返す（商品ページ用）
func (u *CatalogUsecase) GetPublicProduct(ctx context.Context, id int64) (ProductOutput, error) {
	p, err := u.GetProduct(ctx, id)
	if err != nil {
		return ProductOutput{}, err
	}
	if !p.IsActive {
		return ProductOutput{}, errNotFound("product not found")
	}
	return toProductOutput(p), nil
}

func (u *CatalogUsecase) GetEffectivePrice(p model.Product) int64 {
	return p.EffectivePrice()
}

func toProductOutput(p model.Product) ProductOutput {
	return ProductOutput{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		SalePrice:      p.SalePrice,
		EffectivePrice: p.EffectivePrice(),
		Stock:          p.Stock,
		IsActive:       p.IsActive,
	}
}
