package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"sentigo/internal/artifact"
	"sentigo/internal/config"
	"sentigo/internal/inference"
	"sentigo/internal/model"
	mysqlClient "sentigo/internal/platform/mysql"
	"sentigo/internal/platform/objectstore"
	rabbitmqClient "sentigo/internal/platform/rabbitmq"
	redisClient "sentigo/internal/platform/redis"
	"sentigo/internal/repository"
	"sentigo/internal/worker"
)

type App struct {
	Config    *config.Config
	MySQL     *gorm.DB
	Redis     *redis.Client
	MQConn    *amqp.Connection
	Objects   *objectstore.Client
	Artifacts *artifact.Store
	Inference *inference.Client

	ArtifactWorker   *worker.ArtifactPersistWorker
	RetentionSweeper *worker.RetentionSweeper

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.User{}, &model.AnalysisSession{}, &model.TextAnalysis{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	objects, err := objectstore.New(objectstore.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	artifacts := artifact.NewStore(objects)

	inferenceCli := inference.NewClient(
		cfg.Inference.BaseURL,
		inference.WithRetryPolicy(inference.LinearBackoff(5, time.Duration(cfg.Inference.RetryBaseSeconds)*time.Second)),
		inference.WithHealthTimeout(time.Duration(cfg.Inference.HealthTimeoutSeconds)*time.Second),
	)

	resultRepo := repository.NewResultRepository(mysqlDB)
	artifactWorker := worker.NewArtifactPersistWorker(mqConn, resultRepo, artifacts, cfg.RabbitMQ.ArtifactPersistQueue)
	if err := artifactWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start artifact worker failed: %w", err)
	}

	sweeper := worker.NewRetentionSweeper(artifacts, time.Hour, time.Duration(cfg.Storage.RetentionHours)*time.Hour)
	sweeper.Start(ctx)

	return &App{
		Config:           cfg,
		MySQL:            mysqlDB,
		Redis:            redisCli,
		MQConn:           mqConn,
		Objects:          objects,
		Artifacts:        artifacts,
		Inference:        inferenceCli,
		ArtifactWorker:   artifactWorker,
		RetentionSweeper: sweeper,
		StartedAt:        time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.RetentionSweeper != nil {
		a.RetentionSweeper.Close()
	}
	if a.ArtifactWorker != nil {
		a.ArtifactWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
