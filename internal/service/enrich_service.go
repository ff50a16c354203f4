package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moneyrag/internal/models"
	"moneyrag/pkg/config"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MerchantCache remembers enrichment results for the lifetime of a session.
// Failed lookups are cached as "Unknown" so a dead merchant is not retried
// on every subsequent file.
type MerchantCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMerchantCache() *MerchantCache {
	return &MerchantCache{entries: make(map[string]string)}
}

func (c *MerchantCache) Get(description string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.entries[description]
	return info, ok
}

func (c *MerchantCache) Set(description, info string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[description] = info
}

func (c *MerchantCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MerchantEnricher resolves transaction descriptions to a short line about
// the merchant via web search.
type MerchantEnricher struct {
	searcher    Searcher
	concurrency int
	delay       time.Duration
	logger      *zap.Logger
}

func NewMerchantEnricher(searcher Searcher, cfg *config.EnrichConfig, logger *zap.Logger) *MerchantEnricher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	return &MerchantEnricher{
		searcher:    searcher,
		concurrency: concurrency,
		delay:       cfg.Delay,
		logger:      logger,
	}
}

// EnrichAll resolves every distinct description, reusing the session cache
// and bounding concurrent lookups. A failed lookup becomes "Unknown" and
// never fails the batch; only context cancellation does.
func (e *MerchantEnricher) EnrichAll(ctx context.Context, descriptions []string, cache *MerchantCache) (map[string]string, error) {
	results := make(map[string]string, len(descriptions))
	var resultsMu sync.Mutex

	seen := make(map[string]struct{}, len(descriptions))
	var misses []string
	for _, desc := range descriptions {
		if _, ok := seen[desc]; ok {
			continue
		}
		seen[desc] = struct{}{}
		if info, ok := cache.Get(desc); ok {
			results[desc] = info
			continue
		}
		misses = append(misses, desc)
	}

	if len(misses) == 0 {
		return results, nil
	}

	e.logger.Info("Enriching merchant descriptions",
		zap.Int("total", len(seen)),
		zap.Int("cached", len(seen)-len(misses)),
		zap.Int("lookups", len(misses)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, desc := range misses {
		g.Go(func() error {
			// Politeness pause so bursts of lookups do not hammer the API.
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-time.After(e.delay):
			}

			e.logger.Debug("Web searching merchant", zap.String("description", desc))

			info, err := e.searcher.Search(gctx, fmt.Sprintf("What type of business / store is '%s'?", desc))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn("Merchant lookup failed",
					zap.String("description", desc),
					zap.Error(err),
				)
				info = models.UnknownEnrichment
			}

			cache.Set(desc, info)
			resultsMu.Lock()
			results[desc] = info
			resultsMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
