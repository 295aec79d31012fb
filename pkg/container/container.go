package container

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"storefront-backend/internal/config"
	infraCache "storefront-backend/internal/infrastructure/cache"
	"storefront-backend/internal/infrastructure/database"
	"storefront-backend/internal/infrastructure/queue"
	"storefront-backend/pkg/cache"
	pkgdb "storefront-backend/pkg/database"
	"storefront-backend/pkg/jwt"

	inventoryHandler "storefront-backend/internal/domains/inventory/handler"
	inventoryJob "storefront-backend/internal/domains/inventory/job"
	inventoryRepo "storefront-backend/internal/domains/inventory/repository"
	inventoryService "storefront-backend/internal/domains/inventory/service"

	promotionHandler "storefront-backend/internal/domains/promotion/handler"
	promotionRepo "storefront-backend/internal/domains/promotion/repository"
	promotionService "storefront-backend/internal/domains/promotion/service"

	orderHandler "storefront-backend/internal/domains/order/handler"
	orderJob "storefront-backend/internal/domains/order/job"
	orderRepo "storefront-backend/internal/domains/order/repository"
	orderService "storefront-backend/internal/domains/order/service"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container holds every dependency of the application. Both binaries build
// one; the API uses the handlers, the worker uses the job handlers.
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	Config     *config.Config
	DB         *database.PostgresDB // nil when STORE_DRIVER=memory
	Cache      cache.Cache
	Redis      *infraCache.RedisCache // nil when running without Redis
	Tx         pkgdb.Transactor
	TaskClient *queue.TaskClient // nil when tasks cannot be enqueued
	JWTManager *jwt.Manager

	asynqClient *asynq.Client

	// ========================================
	// REPOSITORY LAYER
	// ========================================
	InventoryRepo inventoryRepo.RepositoryInterface
	CouponRepo    promotionRepo.CouponRepository
	OrderRepo     orderRepo.OrderRepository

	// ========================================
	// SERVICE LAYER
	// ========================================
	InventoryService inventoryService.ServiceInterface
	CouponService    promotionService.ServiceInterface
	OrderService     orderService.OrderService

	// ========================================
	// HANDLER LAYER (HTTP)
	// ========================================
	InventoryHandler *inventoryHandler.Handler
	CouponHandler    *promotionHandler.Handler
	OrderHandler     *orderHandler.OrderHandler

	// ========================================
	// JOB HANDLERS (WORKER)
	// ========================================
	StockSnapshotJob     *inventoryJob.StockSnapshotHandler
	ReconcileReversalJob *orderJob.ReconcileReversalHandler
	AutoCancelJob        *orderJob.AutoCancelHandler
	ReconcileSweepJob    *orderJob.ReconcileSweepHandler
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer wires the dependency graph in order:
// config, infrastructure, repositories, services, handlers.
func NewContainer() (*Container, error) {
	log.Println("[CONTAINER] Initializing...")

	c := &Container{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Printf("[CONTAINER] Config loaded (environment=%s, store=%s)", cfg.App.Environment, cfg.Store.Driver)

	if err := c.initInfrastructure(); err != nil {
		c.Cleanup()
		return nil, err
	}

	c.initRepositories()
	log.Println("[CONTAINER] Repositories initialized")

	c.initServices()
	log.Println("[CONTAINER] Services initialized")

	c.initHandlers()
	log.Println("[CONTAINER] Handlers initialized")

	log.Println("[CONTAINER] Ready")
	return c, nil
}

// ========================================
// PRIVATE INITIALIZATION METHODS
// ========================================

func (c *Container) initInfrastructure() error {
	cfg := c.Config
	c.JWTManager = jwt.NewManager(cfg.JWT.Secret, time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute)

	// Redis failure is not fatal for the in-memory store; the service then
	// runs with a process-local cache and without background tasks.
	redisCache := infraCache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err := redisCache.Connect(context.Background()); err != nil {
		if cfg.Store.Driver == config.StoreDriverPostgres {
			_ = redisCache.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Printf("[CONTAINER] Redis unavailable, using in-memory cache: %v", err)
		_ = redisCache.Close()
		c.Cache = cache.NewMemoryCache()
	} else {
		c.Redis = redisCache
		c.Cache = redisCache
	}

	if cfg.Store.Driver == config.StoreDriverMemory {
		c.Tx = pkgdb.NoopTransactor{}
		log.Println("[CONTAINER] Using in-memory store")
		return nil
	}

	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}

	db := database.NewPostgresDB(dbConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = db

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	if dbConfig.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
	}

	c.Tx = pkgdb.NewPgxTransactor(db.Pool, dbConfig.LockTimeout)

	// The worker only sees rows in Postgres, so tasks are enqueued only
	// for the shared store.
	c.asynqClient = asynq.NewClient(c.RedisClientOpt())
	c.TaskClient = queue.NewTaskClient(c.asynqClient)
	log.Println("[CONTAINER] Database and task queue connected")

	return nil
}

func (c *Container) initRepositories() {
	if c.DB == nil {
		c.InventoryRepo = inventoryRepo.NewMemoryRepository()
		c.CouponRepo = promotionRepo.NewMemoryCouponRepository()
		c.OrderRepo = orderRepo.NewMemoryOrderRepository()
		return
	}

	pool := c.DB.Pool
	c.InventoryRepo = inventoryRepo.NewRepository(pool)
	c.CouponRepo = promotionRepo.NewPostgresCouponRepository(pool)
	c.OrderRepo = orderRepo.NewPostgresOrderRepository(pool)
}

func (c *Container) initServices() {
	cfg := c.Config

	c.InventoryService = inventoryService.NewLedgerService(c.InventoryRepo, c.Cache, cfg.Order.InventoryCacheTTL)
	c.CouponService = promotionService.NewCouponService(c.CouponRepo, nil)

	// A nil *TaskClient must not end up inside the interface.
	var tasks orderService.TaskEnqueuer
	if c.TaskClient != nil {
		tasks = c.TaskClient
	}

	c.OrderService = orderService.NewOrderService(
		c.OrderRepo,
		c.InventoryService,
		c.CouponService,
		c.Tx,
		c.Cache,
		tasks,
		orderService.Config{
			ShippingFee:    cfg.Order.ShippingFee,
			PendingTTL:     cfg.Order.PendingTTL,
			IdempotencyTTL: cfg.Order.IdempotencyTTL,
		},
	)
}

func (c *Container) initHandlers() {
	c.InventoryHandler = inventoryHandler.NewHandler(c.InventoryService)
	c.CouponHandler = promotionHandler.NewHandler(c.CouponService)
	c.OrderHandler = orderHandler.NewOrderHandler(c.OrderService)

	c.StockSnapshotJob = inventoryJob.NewStockSnapshotHandler(c.InventoryService)
	c.ReconcileReversalJob = orderJob.NewReconcileReversalHandler(c.OrderService)
	c.AutoCancelJob = orderJob.NewAutoCancelHandler(c.OrderService)
	c.ReconcileSweepJob = orderJob.NewReconcileSweepHandler(c.OrderService)
}

// ========================================
// HELPER METHODS
// ========================================

// RedisClientOpt is the asynq connection shared by the client, the worker
// server and the scheduler.
func (c *Container) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Config.Redis.Host,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	}
}

// Cleanup releases connections. Safe on a partially built container.
func (c *Container) Cleanup() {
	log.Println("[CONTAINER] Cleaning up...")

	if c.asynqClient != nil {
		if err := c.asynqClient.Close(); err != nil {
			log.Printf("[CONTAINER] Failed to close task client: %v", err)
		}
	}

	if c.DB != nil {
		c.DB.Close()
		log.Println("[CONTAINER] Database connections closed")
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Printf("[CONTAINER] Failed to close Redis: %v", err)
		} else {
			log.Println("[CONTAINER] Redis connections closed")
		}
	}
}
