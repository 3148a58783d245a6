package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"hotel_proxy/internal/adapters/observability"
	redisad "hotel_proxy/internal/adapters/redis"
	"hotel_proxy/internal/adapters/tbo"
	"hotel_proxy/internal/app"
	"hotel_proxy/internal/domain"
	"hotel_proxy/internal/shared"
)

var version = "dev"

// hotelsPerJob is how many hotels one warm goroutine asks card info for.
const hotelsPerJob = 50

type deps struct {
	cfg     shared.Config
	cache   *redisad.Cache
	writer  *app.WriteBehind
	cards   *app.CardInfoService
	catalog *app.CatalogService
}

func setup() (*deps, error) {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	inv, err := tbo.New(cfg.TBOBase, cfg.TBOUser, cfg.TBOPass, cfg.TBORPS, tbo.WithAttempts(cfg.TBOAttempts))
	if err != nil {
		return nil, fmt.Errorf("tbo client: %w", err)
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.CacheNS)
	w := app.NewWriteBehind(cache, cfg.CacheWriteQueue, cfg.CacheWriteWorkers)
	cards := app.NewCardInfoService(inv, cache, w, app.NewBatchLimiter(cfg.CardInfoBatchInterval), cfg.CardInfoBatchSize)
	return &deps{
		cfg:     cfg,
		cache:   cache,
		writer:  w,
		cards:   cards,
		catalog: app.NewCatalogService(inv, cache, w, cards),
	}, nil
}

func (d *deps) close() {
	d.writer.Close()
	if err := d.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close failed")
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "hotelctl",
		Short:         "Operate the hotel proxy cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(warmCmd(), flushCmd(), versionCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func warmCmd() *cobra.Command {
	var cities []string
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Fill the hotel list and card info cache for one or more cities",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cities) == 0 {
				return fmt.Errorf("at least one --city is required")
			}
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()

			for _, city := range cities {
				if err := warmCity(cmd.Context(), d, city); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&cities, "city", nil, "city code to warm (repeatable)")
	return cmd
}

func warmCity(ctx context.Context, d *deps, city string) error {
	hotels, src, err := d.catalog.Hotels(ctx, city)
	if err != nil {
		return fmt.Errorf("hotels for city %s: %w", city, err)
	}
	codes := make([]domain.HotelCode, 0, len(hotels))
	for _, h := range hotels {
		codes = append(codes, h.HotelCode)
	}
	log.Info().Str("city", city).Str("source", src).Int("hotels", len(codes)).Int("workers", d.cfg.WarmWorkers).Msg("warm starting")

	workers := d.cfg.WarmWorkers
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var cached, fetched atomic.Int64

	for start := 0; start < len(codes); start += hotelsPerJob {
		job := codes[start:min(start+hotelsPerJob, len(codes))]

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(job []domain.HotelCode) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := d.cards.Get(ctx, job)
			if err != nil {
				log.Warn().Err(err).Str("city", city).Msg("card info job failed")
				return
			}
			cached.Add(int64(res.CachedCount))
			fetched.Add(int64(res.FetchedCount))
		}(job)
	}
	wg.Wait()
	d.writer.Wait()

	log.Info().
		Str("city", city).
		Int64("cached", cached.Load()).
		Int64("fetched", fetched.Load()).
		Msg("warm completed")
	return ctx.Err()
}

func flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Delete every cached catalog entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()

			n, err := d.catalog.FlushCache(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys\n", n)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
