// Package cmd monta a árvore de comandos cobra do studybot.
package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studybot/config"
	"studybot/internal/logger"
)

// app guarda o que os comandos compartilham depois do PersistentPreRunE.
type app struct {
	configFile string
	dataDir    string
	verbose    bool

	cfg       *config.Config
	log       *zap.Logger
	logCloser io.Closer
}

// NewRootCmd cria a árvore de comandos.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "studybot",
		Short: "studybot - glossário de estudos no Telegram",
		Long: `studybot guarda termos e definições enviados no chat ou publicados
nos canais onde o bot está, e responde buscas exatas, parciais e aproximadas.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "arquivo de configuração (padrão ./studybot.yaml)")
	rootCmd.PersistentFlags().StringVarP(&a.dataDir, "data-dir", "d", "", "diretório das bases de conhecimento")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log em nível debug")

	rootCmd.AddCommand(
		newServeCmd(a),
		newAddCmd(a),
		newSearchCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newStatsCmd(a),
		newChannelsCmd(a),
	)
	return rootCmd
}

// Execute roda o comando raiz.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func (a *app) init() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.SetDataDir(a.dataDir)
	}

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	// stdout fica livre para a saída dos comandos
	log, closer, err := logger.New(logger.Options{
		Level:      level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    os.Stderr,
	})
	if err != nil {
		return err
	}

	a.cfg, a.log, a.logCloser = cfg, log, closer
	return nil
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
