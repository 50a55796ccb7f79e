package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"studybot/internal/domain"
)

var (
	bucketPartitions = []byte("partitions")
	bucketQuarantine = []byte("quarantine")
)

// BoltStore guarda as bases num único arquivo bbolt. Cada base é um valor JSON
// no bucket "partitions"; gravações são transacionais.
type BoltStore struct {
	db  *bolt.DB
	log *zap.Logger
	now func() time.Time
}

// NewBoltStore abre (ou cria) o banco bbolt no caminho informado.
func NewBoltStore(path string, log *zap.Logger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("erro ao criar diretório do bbolt: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPartitions); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketQuarantine)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("erro ao criar buckets: %w", err)
	}
	return &BoltStore{db: db, log: log.Named("bolt"), now: time.Now}, nil
}

// Load lê a base. Valor corrompido é movido para o bucket "quarantine".
func (s *BoltStore) Load(_ context.Context, id domain.PartitionID) (domain.Partition, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// os bytes do bbolt só valem dentro da transação
		if v := tx.Bucket(bucketPartitions).Get([]byte(id)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return domain.Partition{}, fmt.Errorf("erro ao ler base %s: %w", id, err)
	}
	if data == nil {
		return domain.Partition{}, nil
	}

	p := domain.Partition{}
	if err := json.Unmarshal(data, &p); err != nil {
		s.quarantine(id, data, err)
		return domain.Partition{}, nil
	}
	if p == nil {
		p = domain.Partition{}
	}
	p.Prune()
	return p, nil
}

func (s *BoltStore) quarantine(id domain.PartitionID, data []byte, cause error) {
	key := []byte(string(id) + "@" + strconv.FormatInt(s.now().Unix(), 10))
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketQuarantine).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(bucketPartitions).Delete([]byte(id))
	})
	if err != nil {
		s.log.Error("base corrompida e não foi possível isolá-la",
			zap.String("partition", string(id)), zap.NamedError("decode", cause), zap.Error(err))
		return
	}
	s.log.Error("base corrompida movida para quarentena, usando base vazia",
		zap.String("partition", string(id)), zap.ByteString("key", key), zap.Error(cause))
}

// Save grava a base inteira numa transação.
func (s *BoltStore) Save(_ context.Context, id domain.PartitionID, p domain.Partition) error {
	if p == nil {
		p = domain.Partition{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("erro ao converter base para JSON: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPartitions).Put([]byte(id), data)
	})
}

// Delete remove a base. Idempotente.
func (s *BoltStore) Delete(_ context.Context, id domain.PartitionID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPartitions).Delete([]byte(id))
	})
}

// Partitions lista as bases em ordem de chave.
func (s *BoltStore) Partitions(_ context.Context) ([]domain.PartitionID, error) {
	var ids []domain.PartitionID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPartitions).ForEach(func(k, _ []byte) error {
			id, err := domain.ParsePartitionID(string(k))
			if err != nil {
				s.log.Warn("chave ignorada", zap.ByteString("key", k), zap.Error(err))
				return nil
			}
			ids = append(ids, id)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("erro ao listar bases: %w", err)
	}
	return ids, nil
}

// Quarantined conta os valores isolados por corrupção.
func (s *BoltStore) Quarantined() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQuarantine).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Close fecha o arquivo bbolt.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
