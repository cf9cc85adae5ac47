// Package bootstrap connects the backing services named in the config and
// falls back to in-memory implementations for the ones left unset.
package bootstrap

import (
	"context"

	"github.com/coderev/coderev/backend/go-services/internal/accounts"
	"github.com/coderev/coderev/backend/go-services/internal/config"
	"github.com/coderev/coderev/backend/go-services/internal/database"
	"github.com/coderev/coderev/backend/go-services/internal/docstore"
	"github.com/coderev/coderev/backend/go-services/internal/sessions"
	"github.com/coderev/coderev/backend/go-services/internal/storage"
	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const mongoAttempts = 5

// Services are the connected backends.
type Services struct {
	Docs     docstore.Backend
	Accounts accounts.Repository
	Sessions *sessions.Service
	Files    *storage.SourceStorage
	Redis    *redis.Client

	// Mongo reports whether documents are persisted.
	Mongo bool

	mongoClient *mongo.Client
}

// Connect wires every backend. Unreachable services are logged and replaced
// by in-memory versions so a development instance always starts.
func Connect(ctx context.Context, cfg *config.Config) *Services {
	s := &Services{}

	if cfg.Redis.Host != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			_ = rc.Close()
		} else {
			s.Redis = rc
			sessions.SetBlacklistClient(rc)
			s.Sessions = sessions.NewService(sessions.NewRedisRepository(rc, "session:"))
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	if cfg.MongoDB.URI != "" {
		if client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoAttempts); err != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", mongoAttempts, err)
		} else {
			s.mongoClient = client
			s.Mongo = true
			db := client.Database(cfg.MongoDB.Database)
			s.Docs = docstore.NewMongoBackend(db)

			repo := accounts.NewMongoRepository(db.Collection("accounts"))
			if err := repo.EnsureIndexes(ctx); err != nil {
				logger.Warnf("accounts indexes: %v", err)
			}
			s.Accounts = repo
			if s.Sessions == nil {
				srepo := sessions.NewMongoRepository(db.Collection("sessions"))
				if err := srepo.EnsureIndexes(ctx); err != nil {
					logger.Warnf("sessions indexes: %v", err)
				}
				s.Sessions = sessions.NewService(srepo)
			}
		}
	}

	if s.Docs == nil {
		logger.Warnf("documents are kept in memory and lost on restart")
		s.Docs = docstore.NewMemoryBackend()
	}
	if s.Accounts == nil {
		s.Accounts = accounts.NewMemoryRepository()
	}
	if s.Sessions == nil {
		s.Sessions = sessions.NewService(sessions.NewMemoryRepository())
	}

	var objects storage.ObjectStore
	if cfg.MinIO.Enabled() {
		ms, err := storage.NewMinIOStorage(&cfg.MinIO)
		if err != nil {
			logger.Warnf("MinIO unavailable, keeping sources in memory: %v", err)
		} else {
			objects = ms
		}
	}
	if objects == nil {
		objects = storage.NewMemoryObjectStore("memory://" + cfg.MinIO.Bucket + "/")
	}
	s.Files = storage.NewSourceStorage(objects)
	return s
}

// Close disconnects from Mongo and Redis.
func (s *Services) Close(ctx context.Context) {
	if s.mongoClient != nil {
		_ = s.mongoClient.Disconnect(ctx)
	}
	if s.Redis != nil {
		sessions.SetBlacklistClient(nil)
		_ = s.Redis.Close()
	}
}
