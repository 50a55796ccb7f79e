package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"studybot/internal/domain"
)

const (
	globalFileName = "knowledge_base.json"
	channelDirName = "knowledge_bases"
	channelPrefix  = "knowledge_"
	jsonSuffix     = ".json"
)

// FileStore guarda cada base em um arquivo JSON.
// A base manual fica em <dir>/knowledge_base.json e cada canal em
// <dir>/knowledge_bases/knowledge_<id>.json.
type FileStore struct {
	dir string
	log *zap.Logger

	mu    sync.Mutex
	cache map[domain.PartitionID]domain.Partition // nil = cache desligado
	now   func() time.Time
}

// FileStoreOption configura o FileStore.
type FileStoreOption func(*FileStore)

// WithCache mantém em memória as bases lidas até que Invalidate seja chamado.
func WithCache() FileStoreOption {
	return func(s *FileStore) {
		s.cache = make(map[domain.PartitionID]domain.Partition)
	}
}

// NewFileStore cria o diretório de dados, se preciso, e devolve o repositório.
func NewFileStore(dir string, log *zap.Logger, opts ...FileStoreOption) (*FileStore, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("erro ao resolver diretório de dados: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, channelDirName), 0o755); err != nil {
		return nil, fmt.Errorf("erro ao criar diretório de dados: %w", err)
	}
	s := &FileStore{dir: dir, log: log.Named("filestore"), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir devolve o diretório raiz dos arquivos.
func (s *FileStore) Dir() string {
	return s.dir
}

// PathFor devolve o arquivo de uma base.
func (s *FileStore) PathFor(id domain.PartitionID) (string, error) {
	if id.IsGlobal() {
		return filepath.Join(s.dir, globalFileName), nil
	}
	n, ok := id.ChannelID()
	if !ok {
		return "", fmt.Errorf("id de base invalido: %q", id)
	}
	return filepath.Join(s.dir, channelDirName, channelPrefix+strconv.FormatInt(n, 10)+jsonSuffix), nil
}

// partitionForPath faz o caminho inverso de PathFor.
func (s *FileStore) partitionForPath(path string) (domain.PartitionID, bool) {
	base := filepath.Base(path)
	if base == globalFileName && filepath.Dir(path) == s.dir {
		return domain.GlobalPartition, true
	}
	stem, ok := strings.CutSuffix(base, jsonSuffix)
	if !ok {
		return "", false
	}
	digits, ok := strings.CutPrefix(stem, channelPrefix)
	if !ok {
		return "", false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return "", false
	}
	return domain.ChannelPartition(n), true
}

// Load lê a base do disco. Arquivo ausente devolve base vazia; arquivo corrompido
// é renomeado para o lado e também devolve base vazia.
func (s *FileStore) Load(_ context.Context, id domain.PartitionID) (domain.Partition, error) {
	path, err := s.PathFor(id)
	if err != nil {
		return domain.Partition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		if p, ok := s.cache[id]; ok {
			return clonePartition(p), nil
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Partition{}, nil
	}
	if err != nil {
		return domain.Partition{}, fmt.Errorf("erro ao ler %s: %w", path, err)
	}

	p := domain.Partition{}
	if err := json.Unmarshal(data, &p); err != nil {
		s.quarantine(path, err)
		return domain.Partition{}, nil
	}
	if p == nil {
		p = domain.Partition{}
	}
	p.Prune()

	if s.cache != nil {
		s.cache[id] = clonePartition(p)
	}
	return p, nil
}

// quarantine renomeia um arquivo corrompido para não ser sobrescrito.
func (s *FileStore) quarantine(path string, cause error) {
	aside := fmt.Sprintf("%s.corrupt-%d", path, s.now().Unix())
	if err := os.Rename(path, aside); err != nil {
		s.log.Error("base corrompida e não foi possível renomeá-la",
			zap.String("path", path), zap.NamedError("decode", cause), zap.Error(err))
		return
	}
	s.log.Error("base corrompida movida para o lado, usando base vazia",
		zap.String("path", path), zap.String("moved_to", aside), zap.Error(cause))
}

// Save grava a base num arquivo temporário e depois o renomeia por cima do original.
func (s *FileStore) Save(_ context.Context, id domain.PartitionID, p domain.Partition) error {
	path, err := s.PathFor(id)
	if err != nil {
		return err
	}
	if p == nil {
		p = domain.Partition{}
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("erro ao converter base para JSON: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache[id] = clonePartition(p)
	}
	s.log.Debug("base salva", zap.String("partition", string(id)), zap.Int("terms", len(p)))
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("erro ao criar diretório %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("erro ao criar arquivo temporário: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("erro ao escrever %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("erro ao sincronizar %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("erro ao fechar %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("erro ao substituir %s: %w", path, err)
	}
	return nil
}

// Delete remove o arquivo da base.
func (s *FileStore) Delete(_ context.Context, id domain.PartitionID) error {
	path, err := s.PathFor(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil {
		delete(s.cache, id)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("erro ao remover %s: %w", path, err)
	}
	return nil
}

// Partitions lista a base manual (se existir) e as bases de canal, em ordem.
func (s *FileStore) Partitions(_ context.Context) ([]domain.PartitionID, error) {
	var ids []domain.PartitionID

	if _, err := os.Stat(filepath.Join(s.dir, globalFileName)); err == nil {
		ids = append(ids, domain.GlobalPartition)
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, channelDirName, channelPrefix+"*"+jsonSuffix))
	if err != nil {
		return nil, fmt.Errorf("erro ao listar bases: %w", err)
	}
	var channels []domain.PartitionID
	for _, m := range matches {
		id, ok := s.partitionForPath(m)
		if !ok {
			s.log.Warn("arquivo de base ignorado", zap.String("path", m))
			continue
		}
		channels = append(channels, id)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return append(ids, channels...), nil
}

// Invalidate descarta do cache a base do arquivo alterado. Usado pelo watcher.
func (s *FileStore) Invalidate(path string) {
	id, ok := s.partitionForPath(path)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if _, cached := s.cache[id]; cached {
		delete(s.cache, id)
		s.log.Debug("cache invalidado", zap.String("partition", string(id)), zap.String("path", path))
	}
}

// Close não tem recursos a liberar.
func (s *FileStore) Close() error {
	return nil
}

// clonePartition copia a base para que o cache não seja alterado por quem a recebeu.
func clonePartition(p domain.Partition) domain.Partition {
	out := make(domain.Partition, len(p))
	for k, r := range p {
		if r == nil {
			continue
		}
		cp := *r
		cp.Definitions = slices.Clone(r.Definitions)
		cp.Related = slices.Clone(r.Related)
		cp.Keywords = slices.Clone(r.Keywords)
		out[k] = &cp
	}
	return out
}
