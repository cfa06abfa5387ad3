package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	"storefront/internal/infra/event"
	"storefront/internal/infra/idgen"
	"storefront/internal/infra/lock"
	"storefront/internal/infra/logger"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/tracing"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"go.uber.org/zap"
)

const serviceName = "storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logger.Init(string(cfg.Env), string(cfg.LogLevel)); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//トレース（JAEGER_ENDPOINT が空なら何もしない）
	tp, err := tracing.Init(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatal("tracing init failed", zap.Error(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatal("db migrate failed", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("db handle failed", zap.Error(err))
	}
	defer sqlDB.Close()

	//注文確定ロック（Redis が無ければプロセス内）
	var locker usecase.Locker = lock.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("redis connect failed", zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
	}

	//注文イベント（Kafka が無ければ捨てる）
	var publisher interface {
		usecase.EventPublisher
		Close() error
	} = event.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicOrders)
	}
	defer publisher.Close()

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartItemGormRepository(gormDB)
	buyNowRepo := infraRepo.NewBuyNowGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	ids := idgen.UUIDGenerator{}
	numbers := idgen.OrderNumberGenerator{}
	clock := idgen.SystemClock{}

	//Usecase生成
	catalogUC := usecase.NewCatalogUsecase(productRepo)
	cartUC := usecase.NewCartUsecase(cartRepo, productRepo, cfg.ClampCartToStock())
	buyNowUC := usecase.NewBuyNowUsecase(buyNowRepo, productRepo, ids, clock, cfg.BuyNowTTL, log)
	mergeUC := usecase.NewSessionMergeUsecase(txm, cfg.CheckoutMaxRetries, log)
	orderUC := usecase.NewOrderUsecase(txm, locker, publisher, numbers, clock, usecase.CheckoutOptions{
		Timeout:    cfg.CheckoutTimeout,
		MaxRetries: cfg.CheckoutMaxRetries,
		LockTTL:    cfg.CheckoutLockTTL,
	}, log)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, publisher, clock, log)

	//Handler生成
	e := server.New(cfg, log, server.Handlers{
		Health:     handler.NewHealthHandler(sqlDB),
		Product:    handler.NewProductHandler(catalogUC),
		Cart:       handler.NewCartHandler(cartUC, mergeUC),
		BuyNow:     handler.NewBuyNowHandler(buyNowUC),
		Order:      handler.NewOrderHandler(orderUC),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
	})

	//Server起動
	if err := server.Start(ctx, e, ":"+strings.TrimPrefix(cfg.Port, ":"), log); err != nil {
		log.Error("server stopped", zap.Error(err))
	}
}
