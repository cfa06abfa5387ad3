package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/db"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB はテスト用のインメモリSQLite。
// 接続は1本だけにする（:memory: は接続ごとに別DBになる）。トランザクションは直列に流れる。
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

// SeedProduct は公開中の商品を1件作る
func SeedProduct(t *testing.T, gdb *gorm.DB, sku string, price int64, stock int64) model.Product {
	t.Helper()

	p := model.Product{
		SKU:      sku,
		Name:     "Product " + sku,
		Price:    price,
		Stock:    stock,
		IsActive: true,
	}
	require.NoError(t, gdb.Create(&p).Error)
	return p
}

// ReloadProduct はDBの今の値を読む
func ReloadProduct(t *testing.T, gdb *gorm.DB, id int64) model.Product {
	t.Helper()

	var p model.Product
	require.NoError(t, gdb.Unscoped().First(&p, id).Error)
	return p
}

func SetSalePrice(t *testing.T, gdb *gorm.DB, id int64, sale int64) {
	t.Helper()
	require.NoError(t, gdb.Model(&model.Product{}).Where("id = ?", id).Update("sale_price", sale).Error)
}

func SetPrice(t *testing.T, gdb *gorm.DB, id int64, price int64) {
	t.Helper()
	require.NoError(t, gdb.Model(&model.Product{}).Where("id = ?", id).Update("price", price).Error)
}

func SetActive(t *testing.T, gdb *gorm.DB, id int64, active bool) {
	t.Helper()
	require.NoError(t, gdb.Model(&model.Product{}).Where("id = ?", id).Update("is_active", active).Error)
}

func SetStock(t *testing.T, gdb *gorm.DB, id int64, stock int64) {
	t.Helper()
	require.NoError(t, gdb.Model(&model.Product{}).Where("id = ?", id).Update("stock_quantity", stock).Error)
}

func CountRows(t *testing.T, gdb *gorm.DB, m interface{}) int64 {
	t.Helper()

	var n int64
	require.NoError(t, gdb.Model(m).Count(&n).Error)
	return n
}

func MustAnonymous(t *testing.T, sid string) model.Owner {
	t.Helper()
	o, err := model.AnonymousOwner(sid)
	require.NoError(t, err)
	return o
}

func MustAccount(t *testing.T, id int64) model.Owner {
	t.Helper()
	o, err := model.AccountOwner(id)
	require.NoError(t, err)
	return o
}

// FixedClock は進められる時計
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SeqIDs は予測できるIDを返す
type SeqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func NewSeqIDs(prefix string) *SeqIDs {
	return &SeqIDs{prefix: prefix}
}

func (g *SeqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.prefix + "-" + strconv.Itoa(g.n)
}

// SeqOrderNumbers は ORD-YYYYMMDD-00000001 形式で連番
type SeqOrderNumbers struct {
	mu sync.Mutex
	n  int
}

func (g *SeqOrderNumbers) NewOrderNumber(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ORD-%s-%08d", now.UTC().Format("20060102"), g.n)
}

// RecordingPublisher は送ったイベントを覚えておく
type RecordingPublisher struct {
	mu     sync.Mutex
	Keys   []string
	Events []interface{}
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, key string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Keys = append(p.Keys, key)
	p.Events = append(p.Events, event)
	return nil
}

func (p *RecordingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Events)
}
