package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"

	"euromillions/internal/config"
	"euromillions/internal/extract"
	"euromillions/internal/fetcher"
	"euromillions/internal/models"
)

const previewChars = 500

var (
	// ErrNotFound means no stored draw matches the request.
	ErrNotFound = errors.New("draw not found")
	// ErrInvalidInput means a caller-supplied value was rejected.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoSources means no source URL is configured for the sync mode.
	ErrNoSources = errors.New("no source URLs configured")
)

// Fetcher retrieves a source document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Response, error)
}

// Store persists draws keyed by date.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, d models.Draw) error
	Latest(ctx context.Context) (*models.Draw, error)
	Get(ctx context.Context, date string) (*models.Draw, error)
	List(ctx context.Context, year, limit int) ([]models.Draw, error)
}

// Options configures a DrawService.
type Options struct {
	Sources config.SourcesConfig
	Window  int
	Version string
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// DrawService syncs draws from the source pages into the store and serves
// stored draws.
type DrawService struct {
	mu          sync.RWMutex
	fetcher     Fetcher
	store       Store
	sources     config.SourcesConfig
	window      int
	version     string
	now         func() time.Time
	started     time.Time
	schemaReady bool
	lastSync    *models.SyncReport
}

// NewDrawService creates and initializes a new DrawService.
func NewDrawService(f Fetcher, st Store, opts Options) *DrawService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Window <= 0 {
		opts.Window = extract.DefaultWindow
	}
	return &DrawService{
		fetcher: f,
		store:   st,
		sources: opts.Sources,
		window:  opts.Window,
		version: opts.Version,
		now:     opts.Now,
		started: opts.Now(),
	}
}

// Draws returns stored draws newest first. Zero year or limit means no filter.
func (s *DrawService) Draws(ctx context.Context, year, limit int) ([]models.Draw, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s.store.List(ctx, year, limit)
}

// Draw returns the stored draw for an ISO date.
func (s *DrawService) Draw(ctx context.Context, date string) (*models.Draw, error) {
	if _, err := extract.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	d, err := s.store.Get(ctx, date)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, date)
	}
	return d, nil
}

// Latest returns the most recent stored draw.
func (s *DrawService) Latest(ctx context.Context) (*models.Draw, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	d, err := s.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: no draws stored", ErrNotFound)
	}
	return d, nil
}

// SyncLatest extracts the most recent draw from the first source page that
// yields one and upserts it. The report is returned on failure too.
func (s *DrawService) SyncLatest(ctx context.Context) (*models.SyncReport, error) {
	return s.sync(ctx, "latest", time.Time{}, s.sources.LatestURLs(s.now()))
}

// SyncDate does the same for one draw date.
func (s *DrawService) SyncDate(ctx context.Context, date time.Time) (*models.SyncReport, error) {
	if date.After(s.now()) {
		return nil, fmt.Errorf("%w: draw date %s is in the future", ErrInvalidInput, date.Format(models.DateLayout))
	}
	return s.sync(ctx, "date", date, s.sources.DateURLs(date))
}

func (s *DrawService) sync(ctx context.Context, mode string, target time.Time, urls []string) (*models.SyncReport, error) {
	start := s.now()
	report := &models.SyncReport{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: start,
		Attempts:  make([]models.Attempt, 0, len(urls)),
	}
	if !target.IsZero() {
		report.Target = target.Format(models.DateLayout)
	}

	err := s.runSync(ctx, report, target, urls)
	report.DurationMs = s.now().Sub(start).Milliseconds()
	if err != nil {
		report.Error = err.Error()
		logger.Errorf("Sync %s (%s) failed after %d attempts: %v", report.ID, mode, len(report.Attempts), err)
	} else {
		logger.Infof("Sync %s (%s) upserted draw %s", report.ID, mode, report.Draw.DrawDate)
	}

	s.mu.Lock()
	s.lastSync = report
	s.mu.Unlock()
	return report, err
}

// runSync tries each URL in order. The first document that extracts wins;
// later URLs are not fetched. When every URL fails the last extraction
// error is reported if any document was fetched, otherwise the last fetch
// error.
func (s *DrawService) runSync(ctx context.Context, report *models.SyncReport, target time.Time, urls []string) error {
	if len(urls) == 0 {
		return ErrNoSources
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	var fetchErr, extractErr error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			fetchErr = fmt.Errorf("%w: %v", fetcher.ErrFetch, err)
			break
		}
		att := models.Attempt{URL: u}
		resp, err := s.fetcher.Fetch(ctx, u)
		if resp != nil {
			att.Status = resp.Status
			att.Bytes = len(resp.Body)
		}
		if err != nil {
			att.Outcome = "fetch_failed"
			att.Error = err.Error()
			if resp != nil && len(resp.Body) > 0 {
				att.Preview = fetcher.Preview(resp.Body, previewChars)
			}
			report.Attempts = append(report.Attempts, att)
			logger.Warningf("Fetch of %s failed: %v", u, err)
			fetchErr = err
			continue
		}

		res, err := extract.Extract(bytes.NewReader(resp.Body), extract.Options{Target: target, Window: s.window})
		if err != nil {
			att.Outcome = "parse_failed"
			att.Error = err.Error()
			var xe *extract.Error
			if errors.As(err, &xe) {
				att.Stage = xe.Stage
				att.Tried = xe.Tried
			}
			att.Preview = fetcher.Preview(resp.Body, previewChars)
			report.Attempts = append(report.Attempts, att)
			logger.Warningf("Extraction from %s failed: %v", u, err)
			extractErr = err
			continue
		}

		att.Outcome = "ok"
		att.Strategy = res.Strategy
		att.Tried = res.Tried
		report.Attempts = append(report.Attempts, att)
		logger.V(1).Infof("Extracted %s from %s via %s in %s container", res.Draw.DrawDate, u, res.Strategy, res.Container)

		d := res.Draw
		report.Draw = &d
		if err := s.store.Upsert(ctx, d); err != nil {
			return err
		}
		report.Upserted = true
		return nil
	}

	if extractErr != nil {
		return extractErr
	}
	return fetchErr
}

// ParseDocument runs extraction on a document without fetching or storing.
func (s *DrawService) ParseDocument(body []byte, target time.Time) (*extract.Result, error) {
	return extract.Extract(bytes.NewReader(body), extract.Options{Target: target, Window: s.window})
}

// ImportDraws validates and upserts draws, skipping invalid ones. It stops
// at the first storage failure.
func (s *DrawService) ImportDraws(ctx context.Context, draws []models.Draw) (imported, skipped int, err error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, 0, err
	}
	for _, d := range draws {
		if err := d.Validate(); err != nil {
			logger.Infof("Skipping imported draw %s: %v", d.DrawDate, err)
			skipped++
			continue
		}
		d.Normalize()
		if err := s.store.Upsert(ctx, d); err != nil {
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}

// LastSync returns the report of the most recent sync, or nil.
func (s *DrawService) LastSync() *models.SyncReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Health reports store reachability and the last sync outcome.
func (s *DrawService) Health(ctx context.Context) models.HealthStatus {
	h := models.HealthStatus{
		Status:   "ok",
		Database: "ok",
		Uptime:   s.now().Sub(s.started).Round(time.Second).String(),
		Version:  s.version,
		LastSync: s.LastSync(),
	}
	if err := s.store.Ping(ctx); err != nil {
		h.Status = "degraded"
		h.Database = err.Error()
	}
	return h
}

// RunScheduler syncs the latest draw every interval until ctx is done.
func (s *DrawService) RunScheduler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncLatest(ctx); err != nil {
				logger.Warningf("Scheduled sync failed: %v", err)
			}
		}
	}
}

func (s *DrawService) ensureSchema(ctx context.Context) error {
	s.mu.RLock()
	ready := s.schemaReady
	s.mu.RUnlock()
	if ready {
		return nil
	}
	if err := s.store.EnsureSchema(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.schemaReady = true
	s.mu.Unlock()
	return nil
}
