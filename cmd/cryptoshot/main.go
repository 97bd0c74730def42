package main

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/cryptoshot/cryptoshot/internal/config"
	"github.com/cryptoshot/cryptoshot/internal/database"
	"github.com/cryptoshot/cryptoshot/internal/domain"
	"github.com/cryptoshot/cryptoshot/internal/export"
	"github.com/cryptoshot/cryptoshot/internal/external"
	"github.com/cryptoshot/cryptoshot/internal/price"
	"github.com/cryptoshot/cryptoshot/internal/provider"
	"github.com/cryptoshot/cryptoshot/internal/retrier"
	"github.com/cryptoshot/cryptoshot/internal/snapshot"
	"github.com/cryptoshot/cryptoshot/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	app := &cli.App{
		Name:  "cryptoshot",
		Usage: "value a cryptocurrency portfolio in fiat at a point in time",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.json",
				Usage:   "portfolio descriptor file",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			watchCommand(),
			timezonesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("cryptoshot failed", "error", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "take one valuation snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "datetime",
				Aliases: []string{"d"},
				Usage:   "instant to value at, in the descriptor's timestamp layout (default: now)",
			},
			&cli.StringFlag{
				Name:    "timezone",
				Aliases: []string{"t"},
				Value:   "UTC",
				Usage:   "timezone the datetime is given in",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "table",
				Usage: "output format: table or json",
			},
			&cli.StringFlag{Name: "csv", Usage: "also write the snapshot to a CSV file"},
			&cli.StringFlag{Name: "xlsx", Usage: "also write the snapshot to an Excel file"},
			&cli.BoolFlag{Name: "sheet", Usage: "also write the snapshot to the configured Google sheet"},
			&cli.BoolFlag{Name: "save", Usage: "persist the snapshot to the configured database"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg := config.Load()

	deps, err := assemble(cfg, c.String("config"))
	if err != nil {
		return err
	}

	at, err := resolveInstant(c.String("datetime"), c.String("timezone"), deps.portfolio.TimestampLayout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, cfg.RunTimeout)
	defer cancel()

	snap, err := deps.aggregator.Build(ctx, deps.providers, at, deps.fiat)
	if err != nil {
		return err
	}

	switch c.String("format") {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
	case "table":
		renderTable(os.Stdout, snap)
	default:
		return fmt.Errorf("unknown format %q", c.String("format"))
	}

	writers, err := buildWriters(ctx, cfg, c)
	if err != nil {
		return err
	}
	if len(writers) > 0 {
		if err := export.NewService(writers...).Export(ctx, snap); err != nil {
			return err
		}
	}

	if c.Bool("save") {
		repo, cleanup, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := repo.Save(ctx, snap); err != nil {
			return err
		}
		slog.Info("snapshot saved", "id", snap.ID)
	}

	return nil
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "value the portfolio at the current instant on an interval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "timezone",
				Aliases: []string{"t"},
				Value:   "UTC",
				Usage:   "timezone for snapshot display times",
			},
			&cli.BoolFlag{Name: "sheet", Usage: "write each snapshot to the configured Google sheet"},
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	cfg := config.Load()

	deps, err := assemble(cfg, c.String("config"))
	if err != nil {
		return err
	}

	zone, err := time.LoadLocation(c.String("timezone"))
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.String("timezone"), err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store worker.Store
	if cfg.DatabaseURL != "" {
		repo, cleanup, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		store = repo
	}

	var hook worker.AfterSnapshotHook
	writers, err := buildWriters(ctx, cfg, c)
	if err != nil {
		return err
	}
	if len(writers) > 0 {
		hook = export.NewService(writers...)
	}

	w := worker.NewSnapshotWorker(deps, cfg.WatchInterval, cfg.RunTimeout, cfg.WatchRetention, zone, store, hook)
	w.Run(ctx)
	return nil
}

func timezonesCommand() *cli.Command {
	return &cli.Command{
		Name:      "timezones",
		Usage:     "list available timezone names, optionally filtered",
		ArgsUsage: "[filter]",
		Action: func(c *cli.Context) error {
			filter := strings.ToLower(c.Args().First())
			names, err := listTimezones(filter)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(os.Stdout, name)
			}
			return nil
		},
	}
}

// zoneinfoRoot is where tzdata lives on Linux and macOS.
const zoneinfoRoot = "/usr/share/zoneinfo"

func listTimezones(filter string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(zoneinfoRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(zoneinfoRoot, path)
		if err != nil {
			return err
		}
		// Zone names start with an upper-case region; everything else in
		// the directory is metadata.
		if rel == "" || rel[0] < 'A' || rel[0] > 'Z' {
			return nil
		}
		if filter != "" && !strings.Contains(strings.ToLower(rel), filter) {
			return nil
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", zoneinfoRoot, err)
	}
	return names, nil
}

// deps bundles everything a valuation run needs. Implements worker.Builder.
type deps struct {
	portfolio  config.Portfolio
	fiat       domain.Fiat
	providers  []provider.Provider
	aggregator *snapshot.Aggregator
}

func (d *deps) Build(ctx context.Context, at domain.PointInTime) (domain.Snapshot, error) {
	return d.aggregator.Build(ctx, d.providers, at, d.fiat)
}

func assemble(cfg config.Config, portfolioPath string) (*deps, error) {
	p, err := config.LoadPortfolio(portfolioPath)
	if err != nil {
		return nil, err
	}

	fiat, err := domain.NewFiat(p.Fiat)
	if err != nil {
		return nil, err
	}

	providers, err := buildProviders(p.Providers)
	if err != nil {
		return nil, err
	}

	sources, err := buildSources(cfg, p.PriceSources)
	if err != nil {
		return nil, err
	}

	r := retrier.New(
		retrier.WithMaxRetries(cfg.RetryMax),
		retrier.WithInitialInterval(cfg.RetryBaseDelay),
	)
	resolver := price.NewService(sources, price.NewMemoryCache(), cfg.PriceTolerance, r)

	return &deps{
		portfolio:  p,
		fiat:       fiat,
		providers:  providers,
		aggregator: snapshot.NewAggregator(resolver, r, cfg.MaxInFlight),
	}, nil
}

func buildProviders(entries []config.ProviderEntry) ([]provider.Provider, error) {
	providers := make([]provider.Provider, 0, len(entries))
	for _, entry := range entries {
		var (
			p   provider.Provider
			err error
		)
		switch entry.Kind {
		case config.KindManual:
			p, err = provider.NewManual(entry.Name, entry.Holdings)
		case config.KindKraken:
			p, err = provider.NewKraken(entry.Name, entry.APIKey, entry.APISecret, entry.IgnoreAssets)
		case config.KindBinance:
			p = provider.NewBinance(entry.Name, entry.APIKey, entry.APISecret, provider.DefaultBinanceSkew)
		case config.KindEVM:
			tokens := lo.Map(entry.Tokens, func(t config.TokenRef, _ int) provider.ERC20Token {
				return provider.ERC20Token{
					Symbol:   t.Symbol,
					Contract: common.HexToAddress(t.Contract),
					Decimals: t.Decimals,
				}
			})
			p, err = provider.NewEVM(entry.Name, entry.RPCURL, entry.Address, entry.NativeAsset, tokens)
		default:
			err = fmt.Errorf("unknown provider kind %q", entry.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("building provider %q: %w", entry.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func buildSources(cfg config.Config, names []string) ([]price.Source, error) {
	if len(names) == 0 {
		names = []string{"coingecko", "cryptocompare"}
	}

	sources := make([]price.Source, 0, len(names))
	for _, name := range names {
		switch name {
		case "coingecko":
			sources = append(sources, external.NewCoinGecko(cfg.CoinGeckoURL, cfg.CoinGeckoAPIKey))
		case "cryptocompare":
			sources = append(sources, external.NewCryptoCompare(cfg.CryptoCompareURL, cfg.CryptoCompareAPIKey))
		case "coinapi":
			if cfg.CoinAPIKey == "" {
				return nil, fmt.Errorf("price source coinapi needs COINAPI_API_KEY")
			}
			sources = append(sources, external.NewCoinAPI(cfg.CoinAPIURL, cfg.CoinAPIKey))
		case "kraken":
			sources = append(sources, external.NewKrakenTrades(cfg.KrakenURL))
		default:
			return nil, fmt.Errorf("unknown price source %q", name)
		}
	}
	return sources, nil
}

func buildWriters(ctx context.Context, cfg config.Config, c *cli.Context) ([]export.Writer, error) {
	var writers []export.Writer
	if path := c.String("csv"); path != "" {
		writers = append(writers, export.NewCSVWriter(path))
	}
	if path := c.String("xlsx"); path != "" {
		writers = append(writers, export.NewExcelWriter(path))
	}
	if c.Bool("sheet") {
		if cfg.SheetID == "" || cfg.SheetCredentialsJSON == "" {
			return nil, fmt.Errorf("sheet export needs SHEET_ID and SHEET_CREDENTIALS_JSON")
		}
		sw, err := export.NewSheetsWriter(ctx, cfg.SheetID, cfg.SheetCredentialsJSON)
		if err != nil {
			return nil, err
		}
		writers = append(writers, sw)
	}
	return writers, nil
}

func openRepository(ctx context.Context, cfg config.Config) (*snapshot.PgRepository, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for persistence")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return snapshot.NewPgRepository(pool), pool.Close, nil
}

func renderTable(out *os.File, snap domain.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "ASSET\tAMOUNT\tPRICE\tSOURCE\tVALUE\t\n")
	for _, row := range snap.Rows {
		marker := ""
		if row.Approximate {
			marker = " ~"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s%s\t\n",
			row.Asset,
			domain.FormatAmount(row.Amount),
			snap.Fiat.Format(row.Price),
			row.PriceSource,
			snap.Fiat.Format(row.Value),
			marker,
		)
	}
	fmt.Fprintf(w, "TOTAL\t\t\t\t%s\t\n", snap.Fiat.Format(snap.Total))
	w.Flush()

	fmt.Fprintf(out, "\nTaken at %s (%s)\n", snap.TakenAt.Format("2006-01-02 15:04:05"), snap.Timezone)
	for _, warn := range snap.Warnings {
		fmt.Fprintf(out, "WARNING [%s] %s: %s\n", warn.Scope, warn.Subject, warn.Message)
	}
}

func resolveInstant(value, zoneName, layout string) (domain.PointInTime, error) {
	if value == "" {
		zone, err := time.LoadLocation(zoneName)
		if err != nil {
			return domain.PointInTime{}, fmt.Errorf("invalid timezone %q: %w", zoneName, err)
		}
		return domain.NewPointInTime(time.Now(), zone), nil
	}
	if layout == "" {
		layout = domain.DefaultTimestampLayout
	}
	return domain.ParsePointInTime(value, layout, zoneName)
}
