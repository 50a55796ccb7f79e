package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"studybot/internal/domain"
	"studybot/internal/service"
	"studybot/internal/utils"
)

// plain formata as saídas do terminal sem MarkdownV2.
var plain = utils.NewBuilder(false)

func newAddCmd(a *app) *cobra.Command {
	var (
		channelID   int64
		channelName string
	)

	cmd := &cobra.Command{
		Use:   `add "Termo - Definição"`,
		Short: "Grava um termo na base manual ou na base de um canal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, knowledge, err := a.openKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			text := strings.Join(args, " ")
			now := time.Now()
			out := cmd.OutOrStdout()

			if channelID == 0 {
				res, err := knowledge.AddManualText(cmd.Context(), text, now)
				if errors.Is(err, service.ErrUnparsed) {
					fmt.Fprintln(out, plain.BuildParseFailure())
					return err
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(out, plain.BuildAdded(res))
				return nil
			}

			results, err := knowledge.Ingest(cmd.Context(), channelID, channelName, text, now)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(out, plain.BuildParseFailure())
				return service.ErrUnparsed
			}
			for _, res := range results {
				fmt.Fprintln(out, plain.BuildAdded(res))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&channelID, "channel", 0, "id do canal (grava como se fosse um post do canal)")
	cmd.Flags().StringVar(&channelName, "channel-name", "", "nome do canal")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search CONSULTA",
		Short: "Busca um termo em todas as bases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, knowledge, err := a.openKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			query := strings.Join(args, " ")
			results, err := knowledge.Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plain.BuildSearchResults(query, results))
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lista todos os termos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, knowledge, err := a.openKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			terms, err := knowledge.List(cmd.Context())
			if err != nil {
				return err
			}
			printChunks(cmd.OutOrStdout(), plain.BuildList(terms))
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TERMO",
		Short: "Remove um termo de todas as bases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, knowledge, err := a.openKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			term := strings.Join(args, " ")
			sources, err := knowledge.Delete(cmd.Context(), term)
			if errors.Is(err, service.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), plain.BuildNotFound(term))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plain.BuildDeleted(term, sources))
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Mostra os totais das bases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, knowledge, err := a.openKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			stats, err := knowledge.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plain.BuildStats(stats))
			return nil
		},
	}
}

func newChannelsCmd(a *app) *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Lista os canais de onde o bot aprendeu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, knowledge, err := a.openKnowledge(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			channels, err := knowledge.Channels(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), channelReport(channels, detailed))
			return nil
		},
	}
	cmd.Flags().BoolVar(&detailed, "stats", false, "mostra definições e média por canal")
	return cmd
}

func channelReport(channels []domain.ChannelSummary, detailed bool) string {
	if detailed {
		return plain.BuildChannelStats(channels)
	}
	return plain.BuildChannels(channels)
}

func printChunks(w io.Writer, chunks []string) {
	for i, c := range chunks {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, c)
	}
}
