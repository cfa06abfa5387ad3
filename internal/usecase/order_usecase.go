package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/metrics"
	"storefront/internal/infra/tracing"
	repo "storefront/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	maxIdempotencyKeyLen = 255
	eventPublishTimeout  = 3 * time.Second
)

type CheckoutOptions struct {
	// 注文確定全体のタイムアウト（超えたらロールバックして503）
	Timeout time.Duration
	// 衝突時のやり直し回数
	MaxRetries int
	// 同じ持ち主の二重送信を防ぐロックの有効期限
	LockTTL time.Duration
}

// OrderUsecase はカート／今すぐ購入を注文に変換する。
// 在庫を減らすのはここだけ（DecreaseStockIfEnough）。
type OrderUsecase struct {
	tx        repo.TransactionManager
	locker    Locker
	publisher EventPublisher
	numbers   OrderNumberGenerator
	clock     Clock
	opts      CheckoutOptions
	log       *zap.Logger
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	locker Locker,
	publisher EventPublisher,
	numbers OrderNumberGenerator,
	clock Clock,
	opts CheckoutOptions,
	log *zap.Logger,
) *OrderUsecase {
	return &OrderUsecase{
		tx:        tx,
		locker:    locker,
		publisher: publisher,
		numbers:   numbers,
		clock:     clock,
		opts:      opts,
		log:       log,
	}
}

// CheckoutSource は注文の元（カート or 今すぐ購入セッション）
type CheckoutSource struct {
	kind  model.OrderSource
	token string
}

func CartSource() CheckoutSource {
	return CheckoutSource{kind: model.OrderSourceCart}
}

func BuyNowSource(token string) CheckoutSource {
	return CheckoutSource{kind: model.OrderSourceBuyNow, token: strings.TrimSpace(token)}
}

func (s CheckoutSource) Kind() model.OrderSource { return s.kind }

type CustomerInput struct {
	Name            string
	Email           string
	Phone           string
	ShippingAddress string
}

type PlaceOrderInput struct {
	Customer CustomerInput
	// 任意。同じ持ち主＋同じキーなら同じ注文を返す
	IdempotencyKey string
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type OrderOutput struct {
	ID              int64             `json:"id"`
	OrderNumber     string            `json:"order_number"`
	Status          string            `json:"status"`
	Source          string            `json:"source"`
	TotalAmount     int64             `json:"total_amount"`
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email,omitempty"`
	CustomerPhone   string            `json:"customer_phone,omitempty"`
	ShippingAddress string            `json:"shipping_address"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 確定対象の1行
type checkoutLine struct {
	cartItemID int64
	productID  int64
	quantity   int64
}

// PlaceOrder は注文を確定する。
// 在庫減算・注文作成・明細スナップショット・カート削除（or セッション消費）を1トランザクションで行い、
// どこかで失敗したら全部ロールバックする。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, owner model.Owner, src CheckoutSource, in PlaceOrderInput) (OrderOutput, error) {
	if owner.IsZero() {
		return OrderOutput{}, errUnauthorized()
	}
	customer, err := normalizeCustomer(in.Customer)
	if err != nil {
		return OrderOutput{}, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return OrderOutput{}, errInvalidInput("invalid idempotency key")
	}
	switch src.kind {
	case model.OrderSourceCart:
	case model.OrderSourceBuyNow:
		if src.token == "" || len(src.token) > maxBuyNowTokenLen {
			return OrderOutput{}, errInvalidInput("invalid token")
		}
	default:
		return OrderOutput{}, errInvalidInput("invalid checkout source")
	}

	ctx, span := tracing.StartSpan(ctx, "usecase.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner.kind", string(owner.Kind())),
		attribute.String("order.source", string(src.kind)),
	)

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	// 同じ持ち主の同時確定は片方だけ通す
	lockKey := "checkout:" + owner.Key()
	lockToken, locked, err := u.locker.Acquire(ctx, lockKey, u.opts.LockTTL)
	if err != nil {
		// ロックが取れなくても在庫は条件付きUPDATEで守られるので続行する
		u.log.Warn("checkout lock unavailable", zap.String("owner", owner.Key()), zap.Error(err))
	} else if !locked {
		return OrderOutput{}, u.fail(span, errConflict("checkout already in progress"))
	} else {
		defer func() {
			if err := u.locker.Release(context.WithoutCancel(ctx), lockKey, lockToken); err != nil {
				u.log.Warn("checkout lock release failed", zap.String("owner", owner.Key()), zap.Error(err))
			}
		}()
	}

	var (
		out     OrderOutput
		created bool
	)
	err = withConflictRetry(ctx, retryOpCheckout, u.opts.MaxRetries, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			var txErr error
			out, created, txErr = u.placeOrderTx(ctx, r, owner, src, customer, key)
			return txErr
		})
	})
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return OrderOutput{}, u.fail(span, errConflict("checkout conflicted with another request, please retry"))
		}
		if _, ok := AsHTTPError(err); !ok {
			u.log.Error("checkout failed",
				zap.String("owner", owner.Key()),
				zap.String("source", string(src.kind)),
				zap.Error(err),
			)
		}
		return OrderOutput{}, u.fail(span, toHTTPError(err))
	}

	metrics.CheckoutLatency.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("order.number", out.OrderNumber))

	if !created {
		// 冪等キーで既存の注文を返しただけ
		return out, nil
	}

	metrics.OrdersPlacedTotal.WithLabelValues(string(src.kind)).Inc()
	u.log.Info("order placed",
		zap.String("order_number", out.OrderNumber),
		zap.String("owner", owner.Key()),
		zap.String("source", string(src.kind)),
		zap.Int("lines", len(out.Items)),
		zap.Int64("total", out.TotalAmount),
	)

	var itemCount int64
	for _, it := range out.Items {
		itemCount += it.Quantity
	}
	u.publish(ctx, out.OrderNumber, model.OrderPlacedEvent{
		Type:        model.EventOrderPlaced,
		OrderNumber: out.OrderNumber,
		OwnerKind:   owner.Kind(),
		Source:      src.kind,
		TotalAmount: out.TotalAmount,
		ItemCount:   itemCount,
		OccurredAt:  out.CreatedAt,
	})

	return out, nil
}

func (u *OrderUsecase) placeOrderTx(
	ctx context.Context,
	r repo.TxRepos,
	owner model.Owner,
	src CheckoutSource,
	customer CustomerInput,
	key string,
) (OrderOutput, bool, error) {
	// 同じキーなら同じ結果
	if key != "" {
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, owner.Key(), key)
		if err != nil {
			return OrderOutput{}, false, err
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return OrderOutput{}, false, err
			}
			return toOrderOutput(existing, items), false, nil
		}
	}

	now := u.clock.Now()

	lines, err := u.loadLines(ctx, r, owner, src, now)
	if err != nil {
		return OrderOutput{}, false, err
	}

	// 商品ID順に減算する（同時確定どうしのロック順をそろえる）
	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })

	orderItems := make([]model.OrderItem, 0, len(lines))
	purchased := make([]int64, 0, len(lines))
	var total int64

	for _, l := range lines {
		//価格・在庫は必ずここで引き直す
		p, err := r.Products().FindByID(ctx, l.productID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return OrderOutput{}, false, err
		}
		if errors.Is(err, repo.ErrNotFound) || !p.IsActive {
			if src.kind == model.OrderSourceCart {
				// カートの行は残す（再公開されたら戻る）
				continue
			}
			return OrderOutput{}, false, errProductUnavailable(l.productID)
		}

		ok, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, l.quantity)
		if err != nil {
			return OrderOutput{}, false, err
		}
		if !ok {
			return OrderOutput{}, false, errInsufficientStock(p.ID, p.Name, p.Stock)
		}

		unitPrice := p.EffectivePrice()
		lineTotal := unitPrice * l.quantity
		orderItems = append(orderItems, model.OrderItem{
			ProductID:           p.ID,
			ProductNameSnapshot: p.Name,
			SKUSnapshot:         p.SKU,
			UnitPriceSnapshot:   unitPrice,
			Quantity:            l.quantity,
			LineTotal:           lineTotal,
		})
		total += lineTotal

		if l.cartItemID > 0 {
			purchased = append(purchased, l.cartItemID)
		}
	}

	if len(orderItems) == 0 {
		return OrderOutput{}, false, errInvalidInput("cart is empty")
	}

	order := &model.Order{
		OrderNumber:     u.numbers.NewOrderNumber(now),
		OwnerKey:        owner.Key(),
		Source:          src.kind,
		Status:          model.OrderStatusPending,
		TotalAmount:     total,
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerPhone:   customer.Phone,
		ShippingAddress: customer.ShippingAddress,
	}
	if key != "" {
		order.IdempotencyKey = &key
	}

	// 注文番号・冪等キーの重複は ErrConflict になり、やり直しで解決する
	if err := r.Orders().Create(ctx, order); err != nil {
		return OrderOutput{}, false, err
	}
	if err := r.OrderItems().CreateBulk(ctx, order.ID, orderItems); err != nil {
		return OrderOutput{}, false, err
	}

	switch src.kind {
	case model.OrderSourceCart:
		//注文に使った行だけ消す
		if _, err := r.CartItems().DeleteByIDs(ctx, owner.Key(), purchased); err != nil {
			return OrderOutput{}, false, err
		}
	case model.OrderSourceBuyNow:
		ok, err := r.BuyNow().MarkConsumed(ctx, src.token, now)
		if err != nil {
			return OrderOutput{}, false, err
		}
		if !ok {
			// 別リクエストが先に使った。やり直すと NotFound になる
			return OrderOutput{}, false, repo.ErrConflict
		}
	}

	return toOrderOutput(*order, orderItems), true, nil
}

func (u *OrderUsecase) loadLines(ctx context.Context, r repo.TxRepos, owner model.Owner, src CheckoutSource, now time.Time) ([]checkoutLine, error) {
	switch src.kind {
	case model.OrderSourceCart:
		items, err := r.CartItems().ListByOwnerForUpdate(ctx, owner.Key())
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, errInvalidInput("cart is empty")
		}
		lines := make([]checkoutLine, 0, len(items))
		for _, it := range items {
			lines = append(lines, checkoutLine{cartItemID: it.ID, productID: it.ProductID, quantity: it.Quantity})
		}
		return lines, nil

	case model.OrderSourceBuyNow:
		s, err := r.BuyNow().FindByTokenForUpdate(ctx, src.token)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errNotFound("buy-now session not found")
		}
		if err != nil {
			return nil, err
		}
		// 使用済み・期限切れは存在しない扱い
		if !s.IsUsable(now) || len(s.Items) == 0 {
			return nil, errNotFound("buy-now session not found")
		}
		lines := make([]checkoutLine, 0, len(s.Items))
		for _, it := range s.Items {
			lines = append(lines, checkoutLine{productID: it.ProductID, quantity: it.Quantity})
		}
		return lines, nil
	}
	return nil, errInvalidInput("invalid checkout source")
}

// ListMyOrders は自分の注文を新しい順に返す。
func (u *OrderUsecase) ListMyOrders(ctx context.Context, owner model.Owner, page int, limit int) (OrderListOutput, error) {
	if owner.IsZero() {
		return OrderListOutput{}, errUnauthorized()
	}
	if page < 1 {
		return OrderListOutput{}, errInvalidInput("invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, errInvalidInput("invalid limit")
	}

	out := OrderListOutput{Page: page, Limit: limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByOwner(ctx, owner.Key(), page, limit)
		if err != nil {
			return err
		}
		out.Total = total

		out.Items = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return err
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, toHTTPError(err)
	}
	return out, nil
}

// GetMyOrder は注文番号で1件返す。他人の注文は NotFound。
func (u *OrderUsecase) GetMyOrder(ctx context.Context, owner model.Owner, orderNumber string) (OrderOutput, error) {
	if owner.IsZero() {
		return OrderOutput{}, errUnauthorized()
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" || len(orderNumber) > 32 {
		return OrderOutput{}, errInvalidInput("invalid order number")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByNumber(ctx, orderNumber)
		if errors.Is(err, repo.ErrNotFound) {
			return errNotFound("order not found")
		}
		if err != nil {
			return err
		}
		if o.OwnerKey != owner.Key() {
			//他人の注文は「存在しない扱い」にする
			return errNotFound("order not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, toHTTPError(err)
	}
	return out, nil
}

func (u *OrderUsecase) fail(span trace.Span, err error) error {
	metrics.CheckoutFailuresTotal.WithLabelValues(string(CodeOf(err))).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// 送信失敗はログだけ（注文自体は確定済み）
func (u *OrderUsecase) publish(ctx context.Context, key string, event interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := u.publisher.Publish(ctx, key, event); err != nil {
		u.log.Warn("order event publish failed", zap.String("order_number", key), zap.Error(err))
	}
}

func normalizeCustomer(in CustomerInput) (CustomerInput, error) {
	out := CustomerInput{
		Name:            strings.TrimSpace(in.Name),
		Email:           strings.TrimSpace(in.Email),
		Phone:           strings.TrimSpace(in.Phone),
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
	}

	if out.Name == "" || len(out.Name) > 255 {
		return CustomerInput{}, errInvalidInput("invalid customer name")
	}
	if out.ShippingAddress == "" {
		return CustomerInput{}, errInvalidInput("shipping address required")
	}
	if out.Email != "" && (!strings.Contains(out.Email, "@") || len(out.Email) > 255) {
		return CustomerInput{}, errInvalidInput("invalid email")
	}
	if len(out.Phone) > 30 {
		return CustomerInput{}, errInvalidInput("invalid phone")
	}
	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			SKU:       it.SKUSnapshot,
			UnitPrice: it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		Source:          string(o.Source),
		TotalAmount:     o.TotalAmount,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		ShippingAddress: o.ShippingAddress,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}
