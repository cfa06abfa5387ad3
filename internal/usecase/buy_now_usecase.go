package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

const (
	maxBuyNowLines    = 10
	maxBuyNowTokenLen = 64

	// 使用済みセッションを残しておく期間（この間は同じトークンで作れない）
	consumedBuyNowRetention = 24 * time.Hour
)

// BuyNowUsecase は「今すぐ購入」。
// カート（cart_items）には一切触れず、専用のセッションだけを使う。
type BuyNowUsecase struct {
	sessions repo.BuyNowRepository
	products repo.ProductRepository
	ids      IDGenerator
	clock    Clock
	ttl      time.Duration
	log      *zap.Logger
}

func NewBuyNowUsecase(
	sessions repo.BuyNowRepository,
	products repo.ProductRepository,
	ids IDGenerator,
	clock Clock,
	ttl time.Duration,
	log *zap.Logger,
) *BuyNowUsecase {
	return &BuyNowUsecase{
		sessions: sessions,
		products: products,
		ids:      ids,
		clock:    clock,
		ttl:      ttl,
		log:      log,
	}
}

type BuyNowLineInput struct {
	ProductID int64
	Quantity  int64
}

// Token が空なら発行する
type CreateBuyNowInput struct {
	Token string
	Items []BuyNowLineInput
}

type BuyNowItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type BuyNowOutput struct {
	Token     string             `json:"token"`
	Items     []BuyNowItemOutput `json:"items"`
	Subtotal  int64              `json:"subtotal"`
	Total     int64              `json:"total"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Create はセッションを作る（同じトークンで未使用なら中身を置き換える）。
func (u *BuyNowUsecase) Create(ctx context.Context, in CreateBuyNowInput) (BuyNowOutput, error) {
	lines, err := normalizeBuyNowLines(in.Items)
	if err != nil {
		return BuyNowOutput{}, err
	}

	token := strings.TrimSpace(in.Token)
	if len(token) > maxBuyNowTokenLen {
		return BuyNowOutput{}, errInvalidInput("invalid token")
	}
	if token == "" {
		token = u.ids.NewID()
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := u.products.FindByIDs(ctx, ids)
	if err != nil {
		return BuyNowOutput{}, errStorage(err)
	}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || !p.IsActive {
			return BuyNowOutput{}, errInvalidInput("invalid product_id")
		}
	}

	existing, err := u.sessions.FindByToken(ctx, token)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return BuyNowOutput{}, errStorage(err)
	}
	if err == nil && existing.IsConsumed() {
		return BuyNowOutput{}, errConflict("buy-now session already used")
	}

	now := u.clock.Now()

	// 期限切れ・使用済みの掃除（失敗しても作成は続ける）
	if n, err := u.sessions.DeleteStale(ctx, now, now.Add(-consumedBuyNowRetention)); err != nil {
		u.log.Warn("buy-now purge failed", zap.Error(err))
	} else if n > 0 {
		u.log.Debug("buy-now sessions purged", zap.Int64("count", n))
	}

	session := model.BuyNowSession{
		Token:     token,
		ExpiresAt: now.Add(u.ttl),
		Items:     make([]model.BuyNowItem, 0, len(lines)),
	}
	for _, l := range lines {
		session.Items = append(session.Items, model.BuyNowItem{
			SessionToken: token,
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
		})
	}

	if err := u.sessions.Save(ctx, session); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return BuyNowOutput{}, errConflict("buy-now session is being updated")
		}
		return BuyNowOutput{}, errStorage(err)
	}

	return buildBuyNowOutput(session, products), nil
}

// Get は期限内・未使用のセッションだけを返す。価格は今の商品から計算する。
func (u *BuyNowUsecase) Get(ctx context.Context, token string) (BuyNowOutput, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxBuyNowTokenLen {
		return BuyNowOutput{}, errInvalidInput("invalid token")
	}

	s, err := u.sessions.FindByToken(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return BuyNowOutput{}, errNotFound("buy-now session not found")
	}
	if err != nil {
		return BuyNowOutput{}, errStorage(err)
	}
	if !s.IsUsable(u.clock.Now()) {
		return BuyNowOutput{}, errNotFound("buy-now session not found")
	}

	ids := make([]int64, 0, len(s.Items))
	for _, it := range s.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := u.products.FindByIDs(ctx, ids)
	if err != nil {
		return BuyNowOutput{}, errStorage(err)
	}

	return buildBuyNowOutput(s, products), nil
}

// Consume はセッションを使用済みにする（2回目以降は NotFound）。
// 注文確定では同じ処理をトランザクション内で行う。
func (u *BuyNowUsecase) Consume(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxBuyNowTokenLen {
		return errInvalidInput("invalid token")
	}

	ok, err := u.sessions.MarkConsumed(ctx, token, u.clock.Now())
	if err != nil {
		return errStorage(err)
	}
	if !ok {
		return errNotFound("buy-now session not found")
	}
	return nil
}

// 数量チェックと、同じ商品の行をまとめる
func normalizeBuyNowLines(in []BuyNowLineInput) ([]BuyNowLineInput, error) {
	if len(in) == 0 {
		return nil, errInvalidInput("items required")
	}

	byProduct := make(map[int64]int64, len(in))
	for _, l := range in {
		if l.ProductID <= 0 {
			return nil, errInvalidInput("invalid product_id")
		}
		if l.Quantity < 1 {
			return nil, errInvalidInput("invalid quantity")
		}
		byProduct[l.ProductID] += l.Quantity
	}
	if len(byProduct) > maxBuyNowLines {
		return nil, errInvalidInput("too many items")
	}

	out := make([]BuyNowLineInput, 0, len(byProduct))
	for id, qty := range byProduct {
		out = append(out, BuyNowLineInput{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func buildBuyNowOutput(s model.BuyNowSession, products map[int64]model.Product) BuyNowOutput {
	out := BuyNowOutput{
		Token:     s.Token,
		Items:     make([]BuyNowItemOutput, 0, len(s.Items)),
		ExpiresAt: s.ExpiresAt,
	}

	for _, it := range s.Items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		price := p.EffectivePrice()
		lineTotal := price * it.Quantity

		out.Items = append(out.Items, BuyNowItemOutput{
			ProductID: it.ProductID,
			Name:      p.Name,
			SKU:       p.SKU,
			Price:     price,
			Quantity:  it.Quantity,
			LineTotal: lineTotal,
		})
		out.Subtotal += lineTotal
	}
	// 税・送料は扱わないので total = subtotal
	out.Total = out.Subtotal

	return out
}
