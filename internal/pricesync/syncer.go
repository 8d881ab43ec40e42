package pricesync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPricesURL      = "https://models.dev/api.json"
	defaultSyncInterval   = 30 * time.Minute
	defaultRequestTimeout = 15 * time.Second
)

// Syncer keeps model_prices synced with the models.dev catalog.
type Syncer struct {
	db       *gorm.DB
	url      string
	interval time.Duration
	client   *http.Client
	now      func() time.Time
}

// NewSyncer constructs a price syncer.
func NewSyncer(db *gorm.DB) *Syncer {
	if db == nil {
		return nil
	}
	return &Syncer{
		db:       db,
		url:      defaultPricesURL,
		interval: defaultSyncInterval,
		client:   &http.Client{Timeout: defaultRequestTimeout},
		now:      time.Now,
	}
}

// Start runs the sync loop in the background.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("price syncer started (interval=%s)", s.interval)
}

func (s *Syncer) run(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}

	if errSync := s.SyncOnce(ctx); errSync != nil {
		log.WithError(errSync).Warn("price syncer: initial sync failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if errSync := s.SyncOnce(ctx); errSync != nil {
				log.WithError(errSync).Warn("price syncer: sync failed")
			}
		}
	}
}

// SyncOnce fetches and persists the latest price payload.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("pricesync: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	url := strings.TrimSpace(s.url)
	if url == "" {
		return fmt.Errorf("pricesync: empty url")
	}
	client := s.client
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	clock := s.now
	if clock == nil {
		clock = time.Now
	}

	requestCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, errRequest := http.NewRequestWithContext(requestCtx, http.MethodGet, url, nil)
	if errRequest != nil {
		return fmt.Errorf("pricesync: build request: %w", errRequest)
	}

	resp, errDo := client.Do(req)
	if errDo != nil {
		return fmt.Errorf("pricesync: request failed: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("price syncer: close response body failed")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("pricesync: unexpected status %d", resp.StatusCode)
	}

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return fmt.Errorf("pricesync: read response: %w", errRead)
	}

	rows, errParse := ParsePricesPayload(body)
	if errParse != nil {
		return errParse
	}
	if len(rows) == 0 {
		return fmt.Errorf("pricesync: empty payload")
	}

	return StorePrices(ctx, s.db, rows, clock().UTC())
}
