package main

import (
	"context"
	"log"

	"flowengine/internal/api/handler"
	"flowengine/internal/bulk"
	"flowengine/internal/config"
	"flowengine/internal/coordinator"
	"flowengine/internal/core/postgres/repository"
	"flowengine/internal/decision"
	"flowengine/internal/domain"
	"flowengine/internal/executor"
	"flowengine/internal/flowtype"
	infraredis "flowengine/internal/infrastructure/redis"
	"flowengine/internal/orchestrator"
	"flowengine/internal/recovery"
	"flowengine/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	// 1. Set up database connection
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(&domain.Flow{}, &domain.ChildFlow{}, &domain.Gap{}, &domain.ImportRecord{}); err != nil {
		log.Fatal("Failed to migrate schema:", err)
	}

	// 2. Redis infrastructure: job queue, event bus, rate limiter
	redisClient := infraredis.NewRedisClient(cfg.RedisAddress)
	queue := infraredis.NewBackgroundQueue(redisClient)
	eventBus := infraredis.NewEventBus(redisClient)
	limiter := infraredis.NewRateLimiter(redisClient, cfg.RateLimitWindow)

	// 3. Repositories
	flowRepo := repository.NewFlowRepository(db)
	importRepo := repository.NewImportRepository(db)
	gapRepo := repository.NewGapRepository(db)

	// 4. Flow type registry: every type and phase is validated here, at
	// startup, never at call time
	registry := flowtype.NewRegistry()
	mustRegister(registry, domain.FlowTypeDiscovery, executor.DiscoveryHandlers(importRepo, queue, limiter))
	mustRegister(registry, domain.FlowTypeAssessment, executor.AssessmentHandlers(gapRepo))
	mustRegister(registry, domain.FlowTypeCollection, executor.CollectionHandlers(gapRepo))

	// 5. Engine services
	exec := executor.NewExecutor(registry)
	decider := decision.NewRuleBasedProvider(registry, cfg.RetryCeiling)
	recoverySvc := recovery.NewService(flowRepo, importRepo, registry, cfg.DiscoveryWindow)
	orch := orchestrator.NewOrchestrator(flowRepo, exec, decider, recoverySvc, registry, cfg.RetryCeiling)
	bulkSvc := bulk.NewService(gapRepo, cfg.BulkChunkSize)

	// 6. Background worker pool + completion listener
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := worker.NewWorker(queue, eventBus, worker.InitRegistry())
	w.StartPool(ctx, cfg.WorkerCount)

	listener := coordinator.NewListener(orch, eventBus)
	go listener.Start(ctx)

	// 7. HTTP surface
	flowHandler := handler.NewFlowHandler(orch, bulkSvc)

	router := gin.Default()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/flows", flowHandler.CreateFlow)
		api.GET("/flows/:id", flowHandler.GetFlowStatus)
		api.POST("/flows/:id/phases", flowHandler.ExecutePhase)
		api.POST("/flows/:id/cancel", flowHandler.CancelFlow)
		api.POST("/flows/:id/repairs", flowHandler.RepairOrphanedData)
		api.POST("/gaps/bulk/preview", flowHandler.BulkPreview)
		api.POST("/gaps/bulk/submit", flowHandler.BulkSubmit)
	}

	// 8. Start server
	log.Println("Server starting on", cfg.HTTPAddress)
	if err := router.Run(cfg.HTTPAddress); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func mustRegister(registry *flowtype.Registry, flowType domain.FlowType, phases []flowtype.PhaseDescriptor) {
	if err := registry.Register(flowType, phases); err != nil {
		log.Fatal("Failed to register flow type:", err)
	}
}
