package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Open abre a conexão com o PostgreSQL e garante que a tabela de bases exista.
func Open(ctx context.Context, connStr string, log *zap.Logger) (*sql.DB, error) {
	if connStr == "" {
		return nil, fmt.Errorf("database_url nao configurada")
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir conexão com o banco de dados: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("erro ao conectar com o banco de dados (ping): %w", err)
	}

	log.Info("conexão com o banco de dados PostgreSQL estabelecida")
	if err := createKnowledgeTableIfNotExists(ctx, db, log); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// createKnowledgeTableIfNotExists cria a tabela das bases de conhecimento, se ela não existir.
func createKnowledgeTableIfNotExists(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	query := `
    CREATE TABLE IF NOT EXISTS knowledge_partitions (
        partition_id VARCHAR(64) PRIMARY KEY,
        payload JSONB NOT NULL,
        updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
    );`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("erro ao criar tabela knowledge_partitions: %w", err)
	}
	log.Debug("tabela 'knowledge_partitions' verificada/criada")
	return nil
}
