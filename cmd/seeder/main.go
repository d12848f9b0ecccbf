package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"os"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"staybook/internal/adapters/observability"
	redisad "staybook/internal/adapters/redis"
	"staybook/internal/domain"
	"staybook/internal/shared"
	mysqlrepo "staybook/internal/storage/mysql"
)

// seeder loads a JSON listing of hotels into the document store. Existing
// rows are untouched; every run inserts fresh documents with new ids.
func main() {
	file := flag.String("file", "seed/hotels.json", "path to the hotels JSON file")
	flag.Parse()

	ctx := context.Background()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "seeder")

	log.Info().
		Str("file", *file).
		Int("workers", cfg.SeedWorkers).
		Msg("seeder starting")

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read seed file")
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		log.Fatal().Err(err).Msg("failed to parse seed file")
	}
	hotels := make([]domain.Hotel, 0, len(docs))
	for i, doc := range docs {
		h, err := domain.DecodeHotel("", doc)
		if err != nil {
			log.Fatal().Int("index", i).Err(err).Msg("invalid hotel document")
		}
		hotels = append(hotels, h)
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	rdb := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	repo := mysqlrepo.New(db, redisad.NewBus(rdb))

	sem := semaphore.NewWeighted(int64(cfg.SeedWorkers))
	var wg sync.WaitGroup

	for _, h := range hotels {
		h := h

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(h domain.Hotel) {
			defer wg.Done()
			defer sem.Release(int64(1))

			id, err := repo.Create(ctx, domain.CollectionHotels, domain.EncodeHotel(h))
			if err != nil {
				log.Warn().Str("name", h.Name).Err(err).Msg("seed failed")
				return
			}
			log.Info().Str("id", id).Str("name", h.Name).Msg("seed ok")
		}(h)
	}

	wg.Wait()
	log.Info().Msg("seeding completed")
}
