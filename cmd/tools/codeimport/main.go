// Command codeimport bulk-loads discount codes from a gzipped CSV export.
//
//	codeimport -file codes.csv.gz [-workers 8] [-dry-run]
//
// Columns: code, percentage, min_amount, min_currency, max_uses, expires_at
// (RFC 3339 or YYYY-MM-DD), currencies (";"-separated), regions
// (";"-separated, empty for all) and an optional description.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/bookwise-api/internal/config"
	"github.com/noah-isme/bookwise-api/internal/db"
	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
	"github.com/noah-isme/bookwise-api/internal/discount"
)

func main() {
	var (
		file    = flag.String("file", "", "path to a .csv.gz export of discount codes")
		workers = flag.Int("workers", 8, "concurrent inserts")
		dryRun  = flag.Bool("dry-run", false, "parse and report without writing")
	)
	flag.Parse()
	if *file == "" {
		log.Fatal("-file is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open %s: %v", *file, err)
	}
	defer f.Close()

	codes, stats, err := readCodes(f)
	if err != nil {
		log.Fatalf("read codes: %v", err)
	}
	log.Printf("parsed %d rows: %d unique, %d duplicate, %d invalid", stats.rows, len(codes), stats.duplicates, stats.invalid)
	if *dryRun {
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.NewPool(connectCtx, cfg.DatabaseURL, "bookwise-codeimport")
	cancel()
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Bumping the generation makes running API instances rebuild their
	// known-code filters on the next miss.
	svc := &discount.Service{Q: dbgen.New(pool), Gen: discount.RedisGeneration{R: rdb}}
	created, skipped, err := importCodes(ctx, svc, codes, *workers)
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	log.Printf("imported %d codes, %d already present", created, skipped)
}

// creator is the part of discount.Service used by importCodes.
type creator interface {
	Create(ctx context.Context, c discount.Code) (discount.Code, error)
}

func importCodes(ctx context.Context, svc creator, codes []discount.Code, workers int) (created, skipped int64, err error) {
	var createdN, skippedN atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, c := range codes {
		g.Go(func() error {
			if _, err := svc.Create(gctx, c); err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					skippedN.Add(1)
					return nil
				}
				return err
			}
			createdN.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return createdN.Load(), skippedN.Load(), err
}
