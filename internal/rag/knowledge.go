package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"studybot/internal/domain"
)

// KnowledgeRepository define a interface para persistir e recuperar bases de conhecimento.
type KnowledgeRepository interface {
	// Load devolve a base pedida. Base inexistente ou corrompida volta vazia.
	Load(ctx context.Context, id domain.PartitionID) (domain.Partition, error)
	// Save substitui a base inteira.
	Save(ctx context.Context, id domain.PartitionID, p domain.Partition) error
	// Delete remove a base. Remover uma base inexistente não é erro.
	Delete(ctx context.Context, id domain.PartitionID) error
	// Partitions lista as bases existentes.
	Partitions(ctx context.Context) ([]domain.PartitionID, error)
	Close() error
}

var (
	_ KnowledgeRepository = (*FileStore)(nil)
	_ KnowledgeRepository = (*BoltStore)(nil)
	_ KnowledgeRepository = (*PostgresKnowledgeRepository)(nil)
)

// ErrUnknownDriver é retornado quando o driver de armazenamento configurado não existe.
var ErrUnknownDriver = errors.New("driver de armazenamento desconhecido")

// PostgresKnowledgeRepository é uma implementação do KnowledgeRepository usando PostgreSQL.
// Cada base é uma linha com o JSON completo em uma coluna JSONB.
type PostgresKnowledgeRepository struct {
	db  *sql.DB
	log *zap.Logger
}

// NewPostgresKnowledgeRepository cria uma nova instância do repositório PostgreSQL.
func NewPostgresKnowledgeRepository(db *sql.DB, log *zap.Logger) *PostgresKnowledgeRepository {
	return &PostgresKnowledgeRepository{db: db, log: log.Named("postgres")}
}

// Load carrega a base do PostgreSQL.
func (r *PostgresKnowledgeRepository) Load(ctx context.Context, id domain.PartitionID) (domain.Partition, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM knowledge_partitions WHERE partition_id = $1`, string(id),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Partition{}, nil
	}
	if err != nil {
		return domain.Partition{}, fmt.Errorf("erro ao buscar base %s no banco de dados: %w", id, err)
	}

	p := domain.Partition{}
	if err := json.Unmarshal(payload, &p); err != nil {
		r.log.Error("base corrompida no banco, usando base vazia",
			zap.String("partition", string(id)), zap.Error(err))
		return domain.Partition{}, nil
	}
	if p == nil {
		return domain.Partition{}, nil
	}
	return p.Prune(), nil
}

// Save grava a base no PostgreSQL, substituindo a versão anterior.
func (r *PostgresKnowledgeRepository) Save(ctx context.Context, id domain.PartitionID, p domain.Partition) error {
	if p == nil {
		p = domain.Partition{}
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("erro ao converter base para JSON: %w", err)
	}

	query := `
    INSERT INTO knowledge_partitions (partition_id, payload, updated_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (partition_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, string(id), payload, time.Now()); err != nil {
		return fmt.Errorf("erro ao salvar base %s no banco de dados: %w", id, err)
	}

	r.log.Debug("base salva", zap.String("partition", string(id)), zap.Int("terms", len(p)))
	return nil
}

// Delete remove a base do PostgreSQL.
func (r *PostgresKnowledgeRepository) Delete(ctx context.Context, id domain.PartitionID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_partitions WHERE partition_id = $1`, string(id)); err != nil {
		return fmt.Errorf("erro ao remover base %s: %w", id, err)
	}
	return nil
}

// Partitions lista as bases gravadas no banco.
func (r *PostgresKnowledgeRepository) Partitions(ctx context.Context) ([]domain.PartitionID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT partition_id FROM knowledge_partitions ORDER BY partition_id`)
	if err != nil {
		return nil, fmt.Errorf("erro ao listar bases: %w", err)
	}
	defer rows.Close()

	var ids []domain.PartitionID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("erro ao escanear id de base: %w", err)
		}
		id, err := domain.ParsePartitionID(raw)
		if err != nil {
			r.log.Warn("id de base ignorado", zap.String("partition", raw), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro durante iteração das bases: %w", err)
	}
	return ids, nil
}

// Close fecha a conexão com o banco.
func (r *PostgresKnowledgeRepository) Close() error {
	return r.db.Close()
}
