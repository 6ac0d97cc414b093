package main

import (
	"time"

	"app/internal/channel/ebay"
	"app/internal/channel/square"
	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/infra/db"
	infraRepo "app/internal/infra/repository"
	"app/internal/obs"
	"app/internal/server"
	"app/internal/usecase"

	"github.com/joho/godotenv"
)

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	// .envがあれば読む（無ければ環境変数だけで動く）
	_ = godotenv.Load()

	logger := obs.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		panic(err)
	}
	if err := gormDB.AutoMigrate(
		&model.StockRecord{},
		&model.ProductMap{},
		&model.ProcessedEvent{},
	); err != nil {
		panic(err)
	}

	//Repository（GORM実装）生成
	stockRepo := infraRepo.NewStockGormRepository(gormDB)
	mappingRepo := infraRepo.NewMappingGormRepository(gormDB)
	eventRepo := infraRepo.NewProcessedEventGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//チャネルクライアント生成
	squareClient := square.NewClient(cfg.SquareAccessToken, cfg.SquareVersion, cfg.SquareLocationID)
	ebayClient := ebay.NewClient(ebay.Config{
		ClientID:            cfg.EbayClientID,
		ClientSecret:        cfg.EbayClientSecret,
		RefreshToken:        cfg.EbayRefreshToken,
		MarketplaceID:       cfg.EbayMarketplaceID,
		MerchantLocationKey: cfg.EbayMerchantLocationKey,
		FulfillmentPolicyID: cfg.EbayFulfillmentPolicyID,
		PaymentPolicyID:     cfg.EbayPaymentPolicyID,
		ReturnPolicyID:      cfg.EbayReturnPolicyID,
	})

	clock := &realClock{}

	//Usecase生成
	syncUC := usecase.NewSyncUsecase(
		txManager, stockRepo, mappingRepo, eventRepo,
		squareClient, ebayClient,
		clock, logger,
		cfg.EchoWindow, cfg.PropagationTimeout,
	)
	listingUC := usecase.NewListingUsecase(txManager, mappingRepo, squareClient, ebayClient, logger)
	productUC := usecase.NewProductUsecase(stockRepo, mappingRepo)

	//Handler生成
	webhookH := handler.NewWebhookHandler(syncUC, cfg, logger)
	opsH := handler.NewOpsHandler(listingUC, productUC, syncUC.ResyncAll)

	//Server起動
	addr := ":" + cfg.Port

	if err := server.Start(addr, cfg, webhookH, opsH); err != nil {
		panic(err)
	}
}
