package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fetchward/crawlkit/internal/assets"
	"github.com/fetchward/crawlkit/internal/build"
	"github.com/fetchward/crawlkit/internal/config"
	"github.com/fetchward/crawlkit/internal/extractor"
	"github.com/fetchward/crawlkit/internal/fetcher"
	"github.com/fetchward/crawlkit/internal/mdconvert"
	"github.com/fetchward/crawlkit/internal/metadata"
	"github.com/fetchward/crawlkit/internal/normalize"
	"github.com/fetchward/crawlkit/internal/politeness"
	"github.com/fetchward/crawlkit/internal/queue"
	"github.com/fetchward/crawlkit/internal/revisit"
	"github.com/fetchward/crawlkit/internal/robots"
	htmlsanitizer "github.com/fetchward/crawlkit/internal/sanitizer"
	"github.com/fetchward/crawlkit/internal/storage"
	"github.com/fetchward/crawlkit/pkg/failure"
	"github.com/fetchward/crawlkit/pkg/limiter"
	"github.com/fetchward/crawlkit/pkg/retry"
	"github.com/fetchward/crawlkit/pkg/timeutil"
	"github.com/fetchward/crawlkit/pkg/urlutil"
)

// RetryParam builds the retry policy shared by the HTML fetcher and the
// asset resolver from the crawl's configured backoff settings.
func RetryParam(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(
			cfg.BackoffInitialDuration(),
			cfg.BackoffMultiplier(),
			cfg.BackoffMaxDuration(),
		),
	)
}

/*
DurableScheduler is the production worker pool: it claims work from a
durable queue.Store, so a crawl can be interrupted and resumed without
losing the set of pages already discovered, their priorities, or their
revisit schedules.

Robots is the sole admission gate, and a pipeline stage never decides
retry or continuation on its own -- every outcome routes through one of
queue.Store's Complete* calls, which is what actually decides whether a
URL is retried, revisited, or terminal. A discovered URL is upserted
into the queue store rather than handed to an in-memory FIFO, so
ClaimNext's priority/readiness ranking decides what gets worked next
across process restarts, not just within one.
*/
type DurableScheduler struct {
	ctx                    context.Context
	metadataSink           metadata.MetadataSink
	crawlFinalizer         metadata.CrawlFinalizer
	robot                  robots.Robot
	queueStore             queue.Store
	gate                   *politeness.Gate
	revisitPolicy          *revisit.Policy
	htmlFetcher            fetcher.Fetcher
	domExtractor           extractor.Extractor
	htmlSanitizer          htmlsanitizer.Sanitizer
	markdownConversionRule mdconvert.ConvertRule
	assetResolver          assets.Resolver
	markdownConstraint     normalize.MarkdownConstraint
	storageSink            storage.Sink
	sleeper                timeutil.Sleeper

	mu           sync.Mutex
	writeResults []storage.WriteResult
}

// NewDurableScheduler wires the C1/C3/C6 durable components (queue
// store, politeness gate, revisit policy) together, building every
// dependency from cfg.
func NewDurableScheduler(cfg config.Config) (*DurableScheduler, failure.ClassifiedError) {
	recorder := metadata.NewRecorder()

	store := queue.NewSQLStore(cfg.QueueDBPath())
	if err := store.Open(); err != nil {
		return nil, err
	}

	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(cfg.PolitenessDefaultInterval())
	rl.SetJitter(cfg.Jitter())
	rl.SetRandomSeed(cfg.RandomSeed())
	gate := politeness.NewGate(rl, globalRPSFromConcurrency(cfg.Workers()))

	cachedRobot := robots.NewCachedRobot(recorder)
	cachedRobot.Init(cfg.UserAgent())

	ext := extractor.NewDomExtractor(recorder, extractor.ExtractParam{
		BodySpecificityBias:  cfg.BodySpecificityBias(),
		LinkDensityThreshold: cfg.LinkDensityThreshold(),
		ScoreMultiplier: extractor.ContentScoreMultiplier{
			NonWhitespaceDivisor: cfg.ScoreMultiplierNonWhitespaceDivisor(),
			Paragraphs:           cfg.ScoreMultiplierParagraphs(),
			Headings:             cfg.ScoreMultiplierHeadings(),
			CodeBlocks:           cfg.ScoreMultiplierCodeBlocks(),
			ListItems:            cfg.ScoreMultiplierListItems(),
		},
		Threshold: extractor.MeaningfulThreshold{
			MinNonWhitespace:    cfg.ThresholdMinNonWhitespace(),
			MinHeadings:         cfg.ThresholdMinHeadings(),
			MinParagraphsOrCode: cfg.ThresholdMinParagraphsOrCode(),
			MaxLinkDensity:      cfg.ThresholdMaxLinkDensity(),
		},
	})
	sanitizer := htmlsanitizer.NewHTMLSanitizer(recorder)
	conversionRule := mdconvert.NewRule(recorder)
	resolver := assets.NewLocalResolver(recorder, &http.Client{}, cfg.UserAgent())
	markdownConstraint := normalize.NewMarkdownConstraint(recorder)
	localSink := storage.NewLocalSink(recorder)
	sleeper := timeutil.NewRealSleeper()
	htmlFetcher := fetcher.NewHtmlFetcher(recorder)

	return &DurableScheduler{
		metadataSink:           recorder,
		crawlFinalizer:         recorder,
		robot:                  &cachedRobot,
		queueStore:             store,
		gate:                   gate,
		revisitPolicy:          revisit.NewPolicy(cfg.Revisit(), nil),
		htmlFetcher:            &htmlFetcher,
		domExtractor:           &ext,
		htmlSanitizer:          &sanitizer,
		markdownConversionRule: conversionRule,
		assetResolver:          &resolver,
		markdownConstraint:     markdownConstraint,
		storageSink:            &localSink,
		sleeper:                &sleeper,
	}, nil
}

// globalRPSFromConcurrency sizes the cross-host safety valve as twice
// the worker count, floored at 1: enough headroom that the per-host
// gate is almost always the binding constraint, while still bounding
// total outbound request rate if a crawl spans many hosts at once.
func globalRPSFromConcurrency(workers int) float64 {
	if workers < 1 {
		workers = 1
	}
	return float64(workers) * 2
}

// SetContext overrides the context the crawl runs under so a caller can
// cancel it (e.g. on an OS signal) without ExecuteCrawlingDurable
// needing to construct its own.
func (s *DurableScheduler) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// Close flushes and releases the underlying queue store. Callers should
// defer this after a durable run completes or is interrupted so the
// snapshot on disk reflects the final state.
func (s *DurableScheduler) Close() failure.ClassifiedError {
	return s.queueStore.Close()
}

// ExecuteCrawlingDurable seeds the queue store from cfg's seed URLs
// (a no-op for URLs already present from a resumed snapshot),
// reclaims any records left in_flight by a crashed prior run, then
// drives cfg.Workers() concurrent goroutines claiming and completing
// records until the store has nothing left ready or in flight.
func (s *DurableScheduler) ExecuteCrawlingDurable(cfg config.Config) (CrawlingExecution, error) {
	crawlStartTime := time.Now()

	var totalErrors int64
	var totalAssets int64

	defer func() {
		stats := s.queueStore.Stats()
		s.crawlFinalizer.RecordFinalCrawlStats(
			stats.ByStatus[queue.StatusVisited],
			int(atomic.LoadInt64(&totalErrors)),
			int(atomic.LoadInt64(&totalAssets)),
			time.Since(crawlStartTime),
		)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()
	if s.ctx == nil {
		s.ctx = ctx
	}

	if len(cfg.SeedURLs()) == 0 {
		err := fmt.Errorf("no seed URLs configured")
		s.metadataSink.RecordError(time.Now(), "config", "config validation", metadata.CauseContentInvalid, err.Error(), []metadata.Attribute{})
		return CrawlingExecution{}, err
	}

	if reclaimed := s.queueStore.ReclaimStale(cfg.StaleClaimThreshold(), time.Now()); reclaimed > 0 {
		s.metadataSink.RecordError(
			time.Now(), "scheduler", "ExecuteCrawlingDurable",
			metadata.CauseUnknown,
			fmt.Sprintf("reclaimed %d stale in_flight record(s) from a prior run", reclaimed),
			nil,
		)
	}

	for _, seed := range cfg.SeedURLs() {
		if _, err := s.queueStore.Upsert(seed.String(), queue.UpsertAttrs{Host: seed.Host, Priority: 0, Depth: 0}); err != nil {
			return CrawlingExecution{}, err
		}
	}

	workerCount := cfg.Workers()
	if workerCount < 1 {
		workerCount = 1
	}

	checkpointStop := s.startCheckpointLoop(s.ctx, cfg.CheckpointInterval())
	defer checkpointStop()

	g, gctx := errgroup.WithContext(s.ctx)
	for i := 0; i < workerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		g.Go(func() error {
			return s.workerLoop(gctx, cfg, workerID, &totalErrors, &totalAssets)
		})
	}

	if err := g.Wait(); err != nil {
		return CrawlingExecution{}, err
	}

	if err := s.queueStore.Flush(); err != nil {
		return CrawlingExecution{}, err
	}

	return CrawlingExecution{WriteResults: s.writeResults}, nil
}

// workerLoop claims and completes records until the store is dry and no
// sibling worker has a claim in flight, or the context is cancelled.
func (s *DurableScheduler) workerLoop(ctx context.Context, cfg config.Config, workerID string, totalErrors, totalAssets *int64) error {
	idleRounds := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		rec, ok := s.queueStore.ClaimNext(workerID, time.Now())
		if !ok {
			stats := s.queueStore.Stats()
			if stats.InFlight == 0 {
				return nil
			}
			idleRounds++
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(10 * time.Millisecond):
			}
			if idleRounds > 10000 {
				return nil
			}
			continue
		}
		idleRounds = 0

		assetsProcessed, recoverable, fatalErr := s.processRecord(ctx, cfg, rec)
		if fatalErr != nil {
			return fatalErr
		}
		if recoverable {
			atomic.AddInt64(totalErrors, 1)
		}
		atomic.AddInt64(totalAssets, int64(assetsProcessed))
	}
}

// startCheckpointLoop periodically checkpoints the queue database's
// write-ahead log so the on-disk file stays current for any
// out-of-process reader, per the §4.9 checkpoint contract. A
// non-positive interval disables periodic flushing (ExecuteCrawlingDurable
// still flushes once at the end).
func (s *DurableScheduler) startCheckpointLoop(ctx context.Context, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				s.queueStore.Flush()
			}
		}
	}()
	return func() { close(done) }
}

// processRecord runs the admission -> politeness -> conditional fetch
// -> pipeline -> completion sequence for a single claimed record. It
// reports the number of local assets written and whether a recoverable
// error occurred; fatalErr signals the whole crawl must abort.
func (s *DurableScheduler) processRecord(ctx context.Context, cfg config.Config, rec queue.Record) (assetsProcessed int, recoverable bool, fatalErr failure.ClassifiedError) {
	now := time.Now()

	target, parseErr := url.Parse(rec.URL())
	if parseErr != nil {
		s.queueStore.CompletePermanentFailure(rec.URL(), now, "unparseable url: "+parseErr.Error(), true)
		return 0, true, nil
	}

	robotsDecision, robotsErr := s.robot.Decide(*target)
	if robotsErr != nil {
		retryAfter := backoffRetryAfter(cfg, rec.RetryCount())
		s.queueStore.CompleteTransientFailure(rec.URL(), now, robotsErr.Error(), retryAfter)
		return 0, true, nil
	}
	if robotsDecision.CrawlDelay > 0 {
		s.gate.SetCrawlDelay(rec.Host(), robotsDecision.CrawlDelay)
	}
	if !robotsDecision.Allowed {
		s.queueStore.CompleteExcluded(rec.URL(), "robots: "+string(robotsDecision.Reason))
		return 0, false, nil
	}

	permit, politenessErr := s.gate.Acquire(ctx, rec.Host())
	if politenessErr != nil {
		return 0, true, nil
	}
	defer permit.Release()

	fetchParam := fetcher.NewFetchParam(*target, cfg.UserAgent()).
		WithConditional(rec.ETag(), rec.LastModified()).
		WithAcceptedContentTypes(cfg.AcceptedContentTypes()).
		WithMaxBodyBytes(cfg.MaxBodyBytes()).
		WithRedirectPolicy(cfg.MaxRedirects(), cfg.AllowedHosts())

	fetchResult, fetchErr := s.htmlFetcher.Fetch(ctx, rec.Depth(), fetchParam, RetryParam(cfg))
	if fetchErr != nil {
		if fetchErr.Severity() == failure.SeverityFatal {
			s.queueStore.CompletePermanentFailure(rec.URL(), now, fetchErr.Error(), isPolicyExcludedFetchError(fetchErr))
			return 0, false, nil
		}
		retryAfter := backoffRetryAfter(cfg, rec.RetryCount())
		s.queueStore.CompleteTransientFailure(rec.URL(), now, fetchErr.Error(), retryAfter)
		return 0, true, nil
	}

	if fetchResult.NotModified() {
		outcome := s.revisitOutcome(now, rec)
		s.queueStore.CompleteNotModified(rec.URL(), now, outcome.NextCrawl, outcome.Interval)
		return 0, false, nil
	}

	extractionResult, err := s.domExtractor.Extract(fetchResult.URL(), fetchResult.Body())
	if err != nil {
		return s.failPipelineStage(rec, now, err)
	}

	sanitizedHtml, err := s.htmlSanitizer.Sanitize(extractionResult.ContentNode)
	if err != nil {
		return s.failPipelineStage(rec, now, err)
	}

	s.admitDiscoveredLinks(cfg, rec, target.Scheme, sanitizedHtml)

	markdownDoc, err := s.markdownConversionRule.Convert(sanitizedHtml)
	if err != nil {
		return s.failPipelineStage(rec, now, err)
	}

	resolveParam := assets.NewResolveParam(cfg.OutputDir(), cfg.MaxAssetSize())
	assetfulMarkdown, err := s.assetResolver.Resolve(ctx, fetchResult.URL(), markdownDoc, resolveParam, RetryParam(cfg))
	if err != nil {
		if err.Severity() == failure.SeverityFatal {
			return s.failPipelineStage(rec, now, err)
		}
		recoverable = true
	}
	assetsProcessed = len(assetfulMarkdown.LocalAssets())

	normalizeParam := normalize.NewNormalizeParam(
		build.FullVersion(),
		time.Now(),
		cfg.HashAlgo(),
		rec.Depth(),
		cfg.AllowedPathPrefix(),
	)
	normalizedMarkdown, err := s.markdownConstraint.Normalize(fetchResult.URL(), assetfulMarkdown, normalizeParam)
	if err != nil {
		a, r, fe := s.failPipelineStage(rec, now, err)
		return a + assetsProcessed, r, fe
	}

	writeResult, err := s.storageSink.Write(cfg.OutputDir(), normalizedMarkdown, cfg.HashAlgo())
	if err != nil {
		a, r, fe := s.failPipelineStage(rec, now, err)
		return a + assetsProcessed, r, fe
	}

	s.mu.Lock()
	s.writeResults = append(s.writeResults, writeResult)
	s.mu.Unlock()

	contentHash := normalizedMarkdown.Frontmatter().ContentHash()
	outcome := s.changeAwareOutcome(now, rec, contentHash)
	s.queueStore.CompleteSuccess(
		rec.URL(), now, contentHash,
		fetchResult.ETag(), fetchResult.LastModified(), fetchResult.Code(),
		outcome.NextCrawl, outcome.Interval,
	)

	return assetsProcessed, recoverable, nil
}

// failPipelineStage maps a pipeline-stage failure to the queue's
// terminal/retry vocabulary: a fatal stage error is a permanent
// failure (no amount of retrying a parse bug fixes itself), a
// recoverable one is a transient failure eligible for retry.
func (s *DurableScheduler) failPipelineStage(rec queue.Record, now time.Time, err failure.ClassifiedError) (int, bool, failure.ClassifiedError) {
	if err.Severity() == failure.SeverityFatal {
		s.queueStore.CompletePermanentFailure(rec.URL(), now, err.Error(), false)
		return 0, false, nil
	}
	retryAfter := now.Add(time.Minute)
	s.queueStore.CompleteTransientFailure(rec.URL(), now, err.Error(), retryAfter)
	return 0, true, nil
}

// isPolicyExcludedFetchError reports whether a fatal fetch error reflects
// this crawl's own policy configuration (host allowlist, body size cap)
// rather than a genuine fetch failure -- the same causes
// mapFetchErrorToMetadataCause already classifies as CausePolicyDisallow.
// Such a URL was never really eligible, so it belongs in the excluded
// bucket, not failed.
func isPolicyExcludedFetchError(err failure.ClassifiedError) bool {
	fetchErr, ok := err.(*fetcher.FetchError)
	if !ok {
		return false
	}
	switch fetchErr.Cause {
	case fetcher.ErrCauseRedirectOffAllowlist, fetcher.ErrCauseBodyTooLarge:
		return true
	default:
		return false
	}
}

// revisitOutcome computes the next schedule for a 304/not-modified
// response: always the no-change branch, since an unchanged body is
// definitionally "no change" regardless of whether this is the page's
// first conditional revalidation.
func (s *DurableScheduler) revisitOutcome(now time.Time, rec queue.Record) revisit.Outcome {
	if rec.LastCrawl().IsZero() {
		return s.revisitPolicy.FirstVisit(now, rec.Priority())
	}
	return s.revisitPolicy.NextAfterNoChange(now, rec.Interval(), rec.Priority())
}

// changeAwareOutcome compares the freshly computed content hash against
// the record's prior one to choose the change/no-change/first-visit
// revisit branch.
func (s *DurableScheduler) changeAwareOutcome(now time.Time, rec queue.Record, newContentHash string) revisit.Outcome {
	if rec.LastCrawl().IsZero() || rec.ContentHash() == "" {
		return s.revisitPolicy.FirstVisit(now, rec.Priority())
	}
	if rec.ContentHash() == newContentHash {
		return s.revisitPolicy.NextAfterNoChange(now, rec.Interval(), rec.Priority())
	}
	return s.revisitPolicy.NextAfterChange(now, rec.Interval(), rec.Priority())
}

// admitDiscoveredLinks resolves a sanitized page's discovered links to
// absolute URLs, restricts them to the configured host allowlist (or
// the current record's own host when none is configured), applies
// §4.1's path-priority rules, and upserts each survivor into the queue
// store at depth+1. depthCap bounds how far from a seed the frontier
// will grow regardless of what pages keep linking onward.
func (s *DurableScheduler) admitDiscoveredLinks(cfg config.Config, rec queue.Record, seedScheme string, sanitizedHtml htmlsanitizer.SanitizedHTMLDoc) {
	depthCap := cfg.DepthCap()
	if depthCap > 0 && rec.Depth()+1 > depthCap {
		return
	}

	allowed := cfg.AllowedHosts()
	if len(allowed) == 0 {
		allowed = map[string]struct{}{rec.Host(): {}}
	}

	for _, u := range sanitizedHtml.GetDiscoveredURLs() {
		resolved := urlutil.Resolve(u, seedScheme, rec.Host())
		if _, ok := allowed[resolved.Host]; !ok {
			continue
		}
		priority := priorityForPath(cfg.PathPriorityRules(), resolved.Path)
		if _, err := s.queueStore.Upsert(resolved.String(), queue.UpsertAttrs{
			Host:     resolved.Host,
			Priority: priority,
			Depth:    rec.Depth() + 1,
		}); err != nil {
			s.metadataSink.RecordError(
				time.Now(), "scheduler", "admitDiscoveredLinks",
				metadata.CauseUnknown, err.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, resolved.String())},
			)
		}
	}
}

// priorityForPath evaluates rules in order and returns the first
// matching prefix's priority, or 0 if nothing matches.
func priorityForPath(rules []config.PathPriorityRule, path string) int {
	for _, rule := range rules {
		if rule.Prefix == "" {
			continue
		}
		if len(path) >= len(rule.Prefix) && path[:len(rule.Prefix)] == rule.Prefix {
			return rule.Priority
		}
	}
	return 0
}

// backoffRetryAfter derives a retry-after timestamp from cfg's backoff
// knobs, scaled by how many times this record has already failed --
// the same exponential-with-ceiling shape pkg/timeutil's backoff param
// gives the pipeline's in-request retries, applied here across claims
// instead of within one.
func backoffRetryAfter(cfg config.Config, retryCount int) time.Time {
	delay := cfg.BackoffInitialDuration()
	mult := cfg.BackoffMultiplier()
	if mult <= 0 {
		mult = 1
	}
	for i := 0; i < retryCount; i++ {
		delay = time.Duration(float64(delay) * mult)
		if cfg.BackoffMaxDuration() > 0 && delay > cfg.BackoffMaxDuration() {
			delay = cfg.BackoffMaxDuration()
			break
		}
	}
	if delay <= 0 {
		delay = time.Second
	}
	return time.Now().Add(delay)
}
