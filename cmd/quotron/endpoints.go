package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/starwalkn/quotron"
	"github.com/starwalkn/quotron/internal/endpoint"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List upstream endpoints with their hosts and cache TTLs",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg := quotron.DefaultConfig()

		if path := resolveConfigPath(); path != fallbackConfigPath || fileExists(path) {
			loaded, err := quotron.LoadConfig(path)
			if err != nil {
				return err
			}

			cfg = loaded
		}

		fmt.Println(renderEndpoints(cfg))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(endpointsCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	ttlStyle    = cellStyle.Foreground(lipgloss.Color("10"))
)

const ttlColumn = 3

func renderEndpoints(cfg quotron.Config) string {
	hosts := endpoint.Hosts{
		Primary:   cfg.Upstream.Hosts.Primary,
		Secondary: cfg.Upstream.Hosts.Secondary,
	}

	rows := make([][]string, 0, len(endpoint.Kinds))

	for _, kind := range endpoint.Kinds {
		rows = append(rows, []string{
			string(kind),
			hosts.Host(kind),
			"/v1/" + apiPath(kind),
			cfg.Cache.TTL.For(kind).String(),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("KIND", "UPSTREAM HOST", "API ROUTE", "TTL").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == ttlColumn:
				return ttlStyle
			default:
				return cellStyle
			}
		})

	return t.Render()
}

func apiPath(kind endpoint.Kind) string {
	switch kind {
	case endpoint.KindQuote:
		return "quote"
	case endpoint.KindSearch:
		return "search"
	case endpoint.KindQuoteSummary:
		return "quote-summary/{symbol}"
	case endpoint.KindScreener:
		return "screener/{id}"
	case endpoint.KindTrending:
		return "trending/{region}"
	default:
		return string(kind) + "/{symbol}"
	}
}
