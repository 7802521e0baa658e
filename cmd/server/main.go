package main

import (
	"context"
	"flag"
	"log"
	"os"

	"k8s.io/klog/v2"

	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/langconfig/backend/config"
	"github.com/langconfig/backend/internal/handler"
	"github.com/langconfig/backend/internal/pkg/database"
	"github.com/langconfig/backend/internal/pkg/embedding"
	"github.com/langconfig/backend/internal/pkg/skills"
	"github.com/langconfig/backend/internal/repository"
	"github.com/langconfig/backend/internal/router"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化 Repository
	skillRepo := repository.NewSkillRepository(db)

	// 初始化向量服务；未配置 API Key 时匹配器降级为关键词匹配
	embedder := buildEmbedder(cfg)

	// 初始化技能管理器
	manager := skills.NewManager(cfg, skillRepo, embedder)
	if err := manager.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start skills manager: %v", err)
	}
	defer manager.Stop()

	// 初始化 Handler
	skillHandler := handler.NewSkillHandler(manager)

	// 设置路由
	r := router.Setup(cfg, skillHandler)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildEmbedder 按配置创建向量服务客户端
func buildEmbedder(cfg *config.Config) embedding.Embedder {
	if cfg.Embedding.APIKey == "" {
		klog.V(2).Info("未配置 embedding API Key，语义匹配将降级为关键词匹配")
		return embedding.NewProbed(nil)
	}

	embedderConfig := &openaiembed.EmbeddingConfig{
		APIKey: cfg.Embedding.APIKey,
		Model:  cfg.Embedding.Model,
	}
	if cfg.Embedding.APIURL != "" {
		embedderConfig.BaseURL = cfg.Embedding.APIURL
	}

	inner, err := openaiembed.NewEmbedder(context.Background(), embedderConfig)
	if err != nil {
		klog.Errorf("创建 embedding 客户端失败: %v", err)
		return embedding.NewProbed(nil)
	}
	return embedding.NewProbed(embedding.NewEinoEmbedder(inner))
}
