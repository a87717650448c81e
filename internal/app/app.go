// Package app wires configuration, storage, repositories and services
// for the server and the admin CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"alcyxob/attachment-offload/internal/config"
	"alcyxob/attachment-offload/internal/logging"
	repoMongo "alcyxob/attachment-offload/internal/repository/mongo"
	"alcyxob/attachment-offload/internal/service"
	"alcyxob/attachment-offload/internal/storage"
	"alcyxob/attachment-offload/internal/storage/local"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config      config.Config
	DB          *mongo.Client
	Auth        service.AuthService
	Attachments service.AttachmentService
	Registry    service.ConfigRegistry
	Migrator    service.BulkMigrator
	Upload      service.UploadService
	Status      service.StatusService
}

// New connects to MongoDB, ensures indexes, seeds the remote config and
// builds every service.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	dbClient, err := repoMongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	appDB := dbClient.Database(cfg.Database.Name)
	logging.Info("database connection established", zap.String("database", cfg.Database.Name))

	indexCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := repoMongo.EnsureIndexes(indexCtx, appDB); err != nil {
		_ = repoMongo.DisconnectDB(dbClient)
		return nil, err
	}

	fileStore, err := local.New(cfg.Filestore.Root)
	if err != nil {
		_ = repoMongo.DisconnectDB(dbClient)
		return nil, fmt.Errorf("open filestore: %w", err)
	}

	userRepo := repoMongo.NewMongoUserRepository(appDB)
	configRepo := repoMongo.NewMongoRemoteConfigRepository(appDB)
	attachmentRepo := repoMongo.NewMongoAttachmentRepository(appDB)

	factory := storage.NewClientFactory(storage.Options{
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
	})
	registry := service.NewConfigRegistry(configRepo, factory)
	if cfg.S3.HasSeed() {
		seeded, err := registry.Bootstrap(ctx, service.RemoteConfigInput{
			Name:      cfg.S3.Name,
			AccessKey: cfg.S3.AccessKeyID,
			SecretKey: cfg.S3.SecretAccessKey,
			Bucket:    cfg.S3.BucketName,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
		})
		if err != nil {
			logging.Warn("could not seed remote config", zap.Error(err))
		} else if seeded {
			logging.Info("seeded active remote config from settings", zap.String("bucket", cfg.S3.BucketName))
		}
	}

	resolver := &storage.Resolver{Registry: registry, Factory: factory, Local: fileStore}
	hooks := service.NewAttachmentInterceptor(attachmentRepo, resolver, fileStore, service.InterceptorOptions{
		PreviewModels: cfg.Attachments.PreviewModels,
		PresignReads:  cfg.S3.PresignReads,
		PresignExpiry: cfg.S3.PresignExpiry,
	})

	a := &App{
		Config:      cfg,
		DB:          dbClient,
		Registry:    registry,
		Attachments: service.NewAttachmentService(attachmentRepo, fileStore, resolver, hooks),
		Migrator:    service.NewBulkMigrator(attachmentRepo, resolver, fileStore, cfg.Migration.Concurrency),
		Upload:      service.NewUploadService(resolver),
		Status:      service.NewStatusService(registry, attachmentRepo),
	}
	if cfg.JWT.Secret != "" {
		a.Auth = service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
		if cfg.Admin.HasSeed() {
			created, err := a.Auth.BootstrapAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password)
			if err != nil {
				logging.Warn("could not seed admin account", zap.Error(err))
			} else if created {
				logging.Info("seeded admin account from settings", zap.String("email", cfg.Admin.Email))
			}
		}
	}
	return a, nil
}

// Close disconnects from MongoDB.
func (a *App) Close() error {
	logging.Info("disconnecting MongoDB")
	return repoMongo.DisconnectDB(a.DB)
}
