package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trogers1052/portfolio-ledger-service/internal/analytics"
	"github.com/trogers1052/portfolio-ledger-service/internal/config"
	"github.com/trogers1052/portfolio-ledger-service/internal/database"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/importer"
	"github.com/trogers1052/portfolio-ledger-service/internal/log"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

var commands = []subcommands.Command{
	&importCmd{},
	&trendCmd{},
	&maCmd{},
	&crossoversCmd{},
	&chartCmd{},
}

var configPath = flag.String("config", "", "config file path, environment only when empty")

// openDB connects to the configured database and applies pending migrations.
func openDB() (*database.DB, *config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := log.Configure(cfg.Log.Level, cfg.Log.Encoding); err != nil {
		return nil, nil, err
	}
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, cfg, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

// analyze runs fn with an Analyzer over the configured database.
func analyze(fn func(a *analytics.Analyzer) error) subcommands.ExitStatus {
	db, _, err := openDB()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	if err := fn(analytics.New(db, dates.SystemClock)); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type rangeFlags struct {
	start string
	end   string
}

func (r *rangeFlags) set(f *flag.FlagSet) {
	f.StringVar(&r.start, "s", "", "start date (yyyy-MM-dd)")
	f.StringVar(&r.end, "d", "", "end date (yyyy-MM-dd), today when empty")
}

func (r *rangeFlags) parse() (time.Time, time.Time, error) {
	start, err := dates.Parse(r.start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if r.end == "" {
		return start, dates.Today(dates.SystemClock), nil
	}
	end, err := dates.Parse(r.end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

type importCmd struct {
	file   string
	symbol string
}

func (*importCmd) Name() string     { return "import-prices" }
func (*importCmd) Synopsis() string { return "load a daily price CSV into the database" }
func (*importCmd) Usage() string {
	return `stockctl import-prices -symbol <ticker> -file <prices.csv>

  Upserts every row of a timestamp,open,high,low,close,volume file and drops
  the cached bars of the imported days.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "", "CSV file to import")
	f.StringVar(&c.symbol, "symbol", "", "ticker of the file")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	in, err := os.Open(c.file)
	if err != nil {
		return fail(err)
	}
	defer in.Close()

	rows, err := importer.ReadDailyCSV(in, c.symbol)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", c.file, err))
	}

	db, cfg, err := openDB()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	if err := db.CreatePriceDataBatch(ctx, rows); err != nil {
		return fail(err)
	}

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		cache := prices.NewCache(db, rdb, cfg.Redis.TTL, cfg.Redis.MissTTL)
		for _, row := range rows {
			if err := cache.Invalidate(ctx, row.Symbol, row.Date); err != nil {
				log.Warn("failed to invalidate cached bar", zap.String("symbol", row.Symbol), zap.Error(err))
				break
			}
		}
	}

	log.Info("prices imported", zap.String("symbol", prices.NormalizeTicker(c.symbol)), zap.Int("rows", len(rows)))
	return subcommands.ExitSuccess
}

type trendCmd struct {
	symbol string
	rangeFlags
}

func (*trendCmd) Name() string     { return "trend" }
func (*trendCmd) Synopsis() string { return "print whether a stock gained or lost over a range" }
func (*trendCmd) Usage() string {
	return `stockctl trend -symbol <ticker> -s <start> [-d <end>]

  Compares the open on the start date with the close on the end date. With
  -s only, the start date is also the end date.
`
}

func (c *trendCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "ticker")
	c.set(f)
}

func (c *trendCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.end == "" {
		c.end = c.start
	}
	start, end, err := c.parse()
	if err != nil {
		return fail(err)
	}
	return analyze(func(a *analytics.Analyzer) error {
		trend, err := a.Trend(ctx, c.symbol, start, end)
		if err != nil {
			return err
		}
		fmt.Println(trend)
		return nil
	})
}

type maCmd struct {
	symbol string
	date   string
	days   int
}

func (*maCmd) Name() string     { return "ma" }
func (*maCmd) Synopsis() string { return "print the moving average of a stock" }
func (*maCmd) Usage() string {
	return `stockctl ma -symbol <ticker> -days <n> [-d <date>]

  Averages the closes of the n trading days before the date.
`
}

func (c *maCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "ticker")
	f.StringVar(&c.date, "d", "", "date (yyyy-MM-dd), today when empty")
	f.IntVar(&c.days, "days", 30, "number of trading days")
}

func (c *maCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	date := dates.Today(dates.SystemClock)
	if c.date != "" {
		var err error
		if date, err = dates.Parse(c.date); err != nil {
			return fail(err)
		}
	}
	return analyze(func(a *analytics.Analyzer) error {
		avg, err := a.MovingAverage(ctx, c.symbol, date, c.days)
		if err != nil {
			return err
		}
		fmt.Printf("%.2f\n", avg)
		return nil
	})
}

type crossoversCmd struct {
	symbol string
	short  int
	long   int
	rangeFlags
}

func (*crossoversCmd) Name() string     { return "crossovers" }
func (*crossoversCmd) Synopsis() string { return "list moving average crossovers of a stock" }
func (*crossoversCmd) Usage() string {
	return `stockctl crossovers -symbol <ticker> -s <start> [-d <end>] [-short <n> -long <m>]

  Without -short and -long, compares the close with its 30 day moving
  average. Otherwise compares the two moving averages.
`
}

func (c *crossoversCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "ticker")
	f.IntVar(&c.short, "short", 0, "short moving average window")
	f.IntVar(&c.long, "long", 0, "long moving average window")
	c.set(f)
}

func (c *crossoversCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	start, end, err := c.parse()
	if err != nil {
		return fail(err)
	}
	return analyze(func(a *analytics.Analyzer) error {
		var crossovers analytics.Crossovers
		if c.short == 0 && c.long == 0 {
			crossovers, err = a.Crossovers(ctx, c.symbol, start, end)
		} else {
			crossovers, err = a.DualCrossovers(ctx, c.symbol, start, end, c.short, c.long)
		}
		if err != nil {
			return err
		}
		for _, d := range crossovers.Dates() {
			fmt.Printf("%s: %s\n", dates.Format(d), crossovers[d])
		}
		return nil
	})
}

type chartCmd struct {
	symbol string
	rangeFlags
}

func (*chartCmd) Name() string     { return "chart" }
func (*chartCmd) Synopsis() string { return "plot the closes of a stock" }
func (*chartCmd) Usage() string {
	return `stockctl chart -symbol <ticker> -s <start> [-d <end>]
`
}

func (c *chartCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "ticker")
	c.set(f)
}

func (c *chartCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	start, end, err := c.parse()
	if err != nil {
		return fail(err)
	}
	return analyze(func(a *analytics.Analyzer) error {
		rendered, err := a.PerformanceChart(ctx, c.symbol, start, end)
		if err != nil {
			return err
		}
		fmt.Print(rendered)
		return nil
	})
}
