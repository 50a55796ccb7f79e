package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"studybot/internal/database"
)

// Drivers de armazenamento suportados.
const (
	DriverJSON     = "json"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// StoreConfig escolhe e configura o repositório.
type StoreConfig struct {
	Driver      string
	DataDir     string
	BoltPath    string
	DatabaseURL string
	Cache       bool
}

// Open cria o repositório do driver configurado.
func Open(ctx context.Context, cfg StoreConfig, log *zap.Logger) (KnowledgeRepository, error) {
	switch cfg.Driver {
	case DriverJSON, "":
		var opts []FileStoreOption
		if cfg.Cache {
			opts = append(opts, WithCache())
		}
		return NewFileStore(cfg.DataDir, log, opts...)
	case DriverBolt:
		return NewBoltStore(cfg.BoltPath, log)
	case DriverPostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		return NewPostgresKnowledgeRepository(db, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
