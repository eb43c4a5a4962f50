// Command fasst-bench drives a synthetic workload against an in-process
// cache table and transaction driver, reporting throughput and eviction
// count. It exists to exercise bucket collisions and lock contention under
// load, not to model a real network deployment (see transport.Loopback).
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacnel/fasst/cache"
	"github.com/jacnel/fasst/directory"
	"github.com/jacnel/fasst/internal/logging"
	"github.com/jacnel/fasst/mapping"
	"github.com/jacnel/fasst/result"
	"github.com/jacnel/fasst/transport"
	"github.com/jacnel/fasst/txn"
)

const benchReqType uint8 = 1

func main() {
	var (
		buckets     = flag.Uint64("buckets", 4096, "number of buckets in the benchmark table")
		keys        = flag.Uint64("keys", 1<<16, "size of the key space requests are drawn from")
		workers     = flag.Int("workers", 8, "number of concurrent transaction goroutines")
		txPerWorker = flag.Int("tx-per-worker", 20000, "transactions each worker issues")
		writeRatio  = flag.Float64("write-ratio", 0.2, "fraction of transactions that are single-key writes")
		logLevel    = flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: logging.Level(*logLevel)})
	log := logging.WithComponent("fasst-bench")

	pool := cache.NewPool(cache.CircularLog, 1<<28)
	table := cache.NewTable(*buckets, pool, func(key, value []byte) {
		atomic.AddUint64(&evictions, 1)
	})
	registry := cache.NewRegistry()
	if err := registry.Register(benchReqType, table); err != nil {
		log.Fatal().Err(err).Msg("registering bench table")
	}

	store := transport.NewLoopback()
	dirMem := directory.NewLoopback(*buckets)
	mapper := mapping.NewStatic([]uint32{1})

	seedRand := rand.New(rand.NewSource(1))
	for i := uint64(0); i < *keys; i++ {
		store.Seed(i, []byte(fmt.Sprintf("seed-%d", seedRand.Uint64())))
	}

	var wg sync.WaitGroup
	var commits, aborts uint64
	start := time.Now()

	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID) + 1))
			dirClient := directory.NewClient(dirMem, *buckets, uint32(workerID)+1)
			driver := txn.NewDriver(registry, dirClient, mapper, store)

			for i := 0; i < *txPerWorker; i++ {
				key := rng.Uint64() % *keys
				tx := txn.NewRecord(uint32(workerID) + 1)
				if rng.Float64() < *writeRatio {
					tx.WriteSet = []*txn.Item{{
						Key: key, Keyhash: key, ReqType: benchReqType,
						Mode: txn.WriteUpdate, Value: []byte("bench-write"),
					}}
				} else {
					tx.ReadSet = []*txn.Item{{Key: key, Keyhash: key, ReqType: benchReqType}}
				}

				ctx := context.Background()
				st := driver.DoRead(ctx, tx)
				if st == result.InProgress {
					atomic.AddUint64(&commits, 1)
					for _, it := range tx.WriteSet {
						table.AbortWrite(tx.CallerID, it.Keyhash)
					}
				} else {
					atomic.AddUint64(&aborts, 1)
				}
			}
		}(w)
	}
	wg.Wait()

	elapsed := time.Since(start)
	total := commits + aborts
	fmt.Fprintf(os.Stdout, "transactions: %d (commits=%d aborts=%d)\n", total, commits, aborts)
	fmt.Fprintf(os.Stdout, "elapsed: %s (%.0f tx/sec)\n", elapsed, float64(total)/elapsed.Seconds())
	fmt.Fprintf(os.Stdout, "cache evictions: %d\n", atomic.LoadUint64(&evictions))
}

var evictions uint64
