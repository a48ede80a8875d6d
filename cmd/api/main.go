package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopapi/internal/config"
	"shopapi/internal/handler"
	infraAuth "shopapi/internal/infra/auth"
	"shopapi/internal/infra/db"
	"shopapi/internal/infra/payment"
	"shopapi/internal/infra/ratelimit"
	infraRepo "shopapi/internal/infra/repository"
	"shopapi/internal/logger"
	repo "shopapi/internal/repository"
	"shopapi/internal/server"
	"shopapi/internal/usecase"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	started := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.GoEnv, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg.PostgresDSN(), cfg.IsDevelopment())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gormDB) }()

	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	//監査ログ：MONGO_URIがあればMongo、無ければPostgres
	var auditRepo repo.AuditLogRepository
	if cfg.MongoURI != "" {
		mc, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer func() { _ = mc.Disconnect(context.Background()) }()
		auditRepo = infraRepo.NewAuditLogMongoRepository(mc.Database(cfg.MongoDatabase))
		log.Info("audit log store", zap.String("store", "mongo"))
	} else {
		auditRepo = infraRepo.NewAuditLogGormRepository(gormDB)
	}

	//レート制限：REDIS_ADDRがあれば共有カウンタ
	var stores server.RateStores
	if cfg.RedisAddr != "" {
		rdb, err := db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		stores.General = ratelimit.NewRedisStore(rdb, "general", cfg.RateLimitGeneral, cfg.RateLimitWindow)
		stores.Strict = ratelimit.NewRedisStore(rdb, "strict", cfg.RateLimitStrict, cfg.RateLimitWindow)
		log.Info("rate limit store", zap.String("store", "redis"))
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartItemRepo := infraRepo.NewCartItemGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	if cfg.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY is empty, payment calls will fail")
	}
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	hasher := infraAuth.NewBcryptHasher(cfg.BcryptCost)
	issuer := infraAuth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTTTL)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(userRepo, hasher, issuer, log)
	productUC := usecase.NewProductUsecase(productRepo, auditRepo, log)
	cartUC := usecase.NewCartUsecase(cartItemRepo, productRepo)
	orderUC := usecase.NewOrderUsecase(txm, orderRepo, orderItemRepo, gateway, log, cfg.Currency)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, orderRepo, orderItemRepo, auditRepo, log)
	paymentUC := usecase.NewPaymentUsecase(gateway, txm, orderRepo, userRepo, log)

	//Handler生成
	srv := server.New(cfg, log, server.Handlers{
		Health:       handler.NewHealthHandler(cfg.GoEnv, started),
		Auth:         handler.NewAuthHandler(authUC),
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
		Order:        handler.NewOrderHandler(orderUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		AuditLog:     handler.NewAdminAuditLogHandler(usecase.NewAuditLogUsecase(auditRepo)),
		Payment:      handler.NewPaymentHandler(paymentUC),
	}, stores)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	return srv.Shutdown(context.Background(), 10*time.Second)
}
