package cmd

import (
	"context"
	"fmt"

	"multitrack/cache"
	"multitrack/config"
	"multitrack/core/audio"
	"multitrack/core/index"
	"multitrack/core/ledger"
	"multitrack/db"
	"multitrack/logger"
	"multitrack/repository"
	"multitrack/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// app holds the collaborators built from config for one command.
type app struct {
	cfg      *config.Config
	blobs    *storage.MinioStore
	resolver storage.Resolver
	index    index.Index
	cache    *cache.IndexCache
	ledger   ledger.Ledger
	modules  ledger.ModuleConfig
	mixer    audio.Mixer
	local    *repository.PublicationRepository

	gdb   *gorm.DB
	redis *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		resolver: storage.Resolver{Scheme: cfg.ContentScheme, GatewayURL: cfg.GatewayURL},
	}

	blobs, err := storage.NewMinioStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.blobs = blobs
	a.mixer = audio.NewFFmpegMixer(cfg.FFmpegPath, a.resolver.Resolve)

	if cfg.IndexMode == "local" || cfg.LedgerMode == "local" {
		gdb, err := db.OpenGorm(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(gdb); err != nil {
			db.Close(gdb)
			return nil, err
		}
		a.gdb = gdb
		a.local = repository.NewPublicationRepository(gdb, blobs, a.resolver)
	}

	var upstream index.Index
	switch cfg.IndexMode {
	case "local":
		upstream = a.local
	case "graphql":
		upstream = index.NewGraphQLClient(cfg.IndexAPIURL)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown INDEX_MODE %q", cfg.IndexMode)
	}

	if cfg.RedisHost != "" {
		client, err := db.ConnectRedis(ctx, cfg)
		if err != nil {
			logger.Warn("[App] Redis 不可用，索引缓存仅合并并发请求", logger.ErrorField(err))
		} else {
			a.redis = client
		}
	}
	a.cache = cache.NewIndexCache(upstream, a.redis, cfg.IndexTTL)
	a.index = a.cache

	contracts, err := ledger.LoadContracts(cfg.ContractsFile, cfg.ChainName)
	switch cfg.LedgerMode {
	case "local":
		a.ledger = a.local
		if err == nil {
			a.modules = ledger.FreeCollect(contracts.FreeCollectModule)
		}
	case "wallet":
		if err != nil {
			a.Close()
			return nil, err
		}
		if cfg.WalletAddress == "" {
			a.Close()
			return nil, fmt.Errorf("WALLET_ADDRESS is required with LEDGER_MODE=wallet")
		}
		a.ledger = ledger.NewWalletLedger(cfg.WalletRPCURL, cfg.WalletAddress, contracts)
		a.modules = ledger.FreeCollect(contracts.FreeCollectModule)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown LEDGER_MODE %q", cfg.LedgerMode)
	}

	logger.Info("[App] 初始化完成",
		logger.String("index", cfg.IndexMode),
		logger.String("ledger", cfg.LedgerMode),
		logger.Bool("cache", a.redis != nil))
	return a, nil
}

func (a *app) Close() {
	if w, ok := a.ledger.(*ledger.WalletLedger); ok {
		w.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.gdb != nil {
		db.Close(a.gdb)
	}
}
