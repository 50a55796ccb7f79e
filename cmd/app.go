package cmd

import (
	"context"

	"go.uber.org/zap"

	"studybot/internal/parser"
	"studybot/internal/rag"
	"studybot/internal/service"
)

// openKnowledge abre o repositório configurado e monta o serviço sobre ele.
// Quem chama fecha o repositório.
func (a *app) openKnowledge(ctx context.Context) (rag.KnowledgeRepository, *service.KnowledgeService, error) {
	repo, err := rag.Open(ctx, rag.StoreConfig{
		Driver:      a.cfg.Storage.Driver,
		DataDir:     a.cfg.DataDir,
		BoltPath:    a.cfg.Storage.BoltPath,
		DatabaseURL: a.cfg.DatabaseURL,
		Cache:       a.cfg.Cache.Enabled,
	}, a.log)
	if err != nil {
		return nil, nil, err
	}

	searcher := rag.NewSearcher()
	searcher.MaxResults = a.cfg.Search.MaxResults
	searcher.FuzzyCutoff = a.cfg.Search.FuzzyCutoff

	var parserOpts []parser.Option
	if a.cfg.Parser.LooseSeparators {
		parserOpts = append(parserOpts, parser.WithLooseSeparators())
	}

	knowledge := service.NewKnowledgeService(repo, a.log,
		service.WithSearcher(searcher),
		service.WithParser(parser.New(parserOpts...)),
		service.WithNotes(a.cfg.Ingest.Notes),
	)

	a.log.Debug("bases abertas",
		zap.String("driver", a.cfg.Storage.Driver), zap.String("data_dir", a.cfg.DataDir))
	return repo, knowledge, nil
}
