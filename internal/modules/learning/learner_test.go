package learning

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	appcfg "github.com/querymind/core/internal/config"
	"github.com/querymind/core/internal/models"
	"github.com/querymind/core/internal/modules/analytics"
	"github.com/querymind/core/internal/modules/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{} // when set, Generate waits for close
	failOn  string
	panicOn string
}

func (f *fakeGenerator) Generate(ctx context.Context, query string) (string, []models.Source, models.SourceType, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.panicOn != "" && strings.Contains(query, f.panicOn) {
		panic("generator exploded")
	}
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return "", nil, models.SourceUnknown, errors.New("generation failed")
	}
	return "generated: " + query, nil, models.SourceRetrieval, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *appcfg.AppConfig {
	return &appcfg.AppConfig{
		Cache: appcfg.CacheSection{
			TTLHours: 24,
			Quality:  appcfg.QualitySection{MinPositive: 2, ExtendHours: 72},
		},
		Learning: appcfg.LearningSection{
			Enabled:       true,
			IntervalHours: 24,
			Workers:       2,
			PreWarm:       appcfg.PreWarmSection{Days: 7, MinCount: 2, Limit: 20},
			Improve:       appcfg.ImproveSection{MinNegative: 1},
			Cleanup:       appcfg.CleanupSection{MaxAgeDays: 30, MinHitCount: 2},
		},
	}
}

func newTestLearner(t *testing.T, gen Generator) (*Service, *cache.Store, *analytics.Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.CacheEntryModel{}, &models.QueryEventModel{}))

	store := cache.NewStore(db, false)
	analyticsSvc := analytics.NewService(db)
	return NewService(store, analyticsSvc, gen, testConfig(), zap.NewNop()), store, analyticsSvc
}

func logQuery(t *testing.T, svc *analytics.Service, query string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := svc.Log(analytics.LogInput{Query: query, Response: "r", SourceType: models.SourceRetrieval})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestRunSingleFlight(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	svc, _, analyticsSvc := newTestLearner(t, gen)

	logQuery(t, analyticsSvc, "popular question", 3)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Run(context.Background())
		assert.NoError(t, err)
	}()

	require.Eventually(t, svc.IsRunning, time.Second, time.Millisecond)

	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(gen.block)
	<-done
	assert.False(t, svc.IsRunning())
}

func TestRunReleasesFlagOnPanic(t *testing.T) {
	gen := &fakeGenerator{panicOn: "popular"}
	svc, _, analyticsSvc := newTestLearner(t, gen)

	logQuery(t, analyticsSvc, "popular question", 3)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	// the panicking candidate is contained and the flag released
	assert.False(t, svc.IsRunning())

	res2, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res2)
}

func TestPreWarmSkipsFreshAndWarmsMissing(t *testing.T) {
	gen := &fakeGenerator{}
	svc, store, analyticsSvc := newTestLearner(t, gen)

	logQuery(t, analyticsSvc, "already cached", 3)
	logQuery(t, analyticsSvc, "needs warming", 3)
	logQuery(t, analyticsSvc, "too rare", 1)

	require.NoError(t, store.Put(cache.Fingerprint("already cached"), "already cached", "a", nil, time.Hour, false))

	res, err := svc.PreWarm(context.Background(), 7, 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Warmed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)

	entry, err := store.Peek(cache.Fingerprint("needs warming"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "generated: needs warming", entry.Answer)
}

func TestPreWarmRefreshesExpiredEntries(t *testing.T) {
	gen := &fakeGenerator{}
	svc, store, analyticsSvc := newTestLearner(t, gen)

	logQuery(t, analyticsSvc, "stale cached", 3)
	require.NoError(t, store.Put(cache.Fingerprint("stale cached"), "stale cached", "old", nil, -time.Hour, false))

	res, err := svc.PreWarm(context.Background(), 7, 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Warmed)

	entry, err := store.Peek(cache.Fingerprint("stale cached"))
	require.NoError(t, err)
	assert.Equal(t, "generated: stale cached", entry.Answer)
}

func TestImproveIsolatesFailures(t *testing.T) {
	gen := &fakeGenerator{failOn: "broken"}
	svc, store, analyticsSvc := newTestLearner(t, gen)

	bad := logQuery(t, analyticsSvc, "broken answer", 2)
	for _, id := range bad {
		require.NoError(t, analyticsSvc.SubmitFeedback(id, -1))
	}
	worse := logQuery(t, analyticsSvc, "improvable answer", 2)
	for _, id := range worse {
		require.NoError(t, analyticsSvc.SubmitFeedback(id, -1))
	}

	res, err := svc.Improve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 1, res.Improved)
	assert.Equal(t, 1, res.Failed)

	entry, err := store.Peek(cache.Fingerprint("improvable answer"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "generated: improvable answer", entry.Answer)
}

func TestCleanupDelegatesToStore(t *testing.T) {
	gen := &fakeGenerator{}
	svc, store, _ := newTestLearner(t, gen)

	require.NoError(t, store.Put(cache.Fingerprint("fresh"), "fresh", "a", nil, time.Hour, false))

	res, err := svc.Cleanup(30, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Deleted)
	assert.False(t, res.Cutoff.IsZero())
}

func TestExtendQualityTTL(t *testing.T) {
	gen := &fakeGenerator{}
	svc, store, analyticsSvc := newTestLearner(t, gen)

	loved := logQuery(t, analyticsSvc, "loved query", 2)
	for _, id := range loved {
		require.NoError(t, analyticsSvc.SubmitFeedback(id, 1))
	}
	evicted := logQuery(t, analyticsSvc, "evicted query", 2)
	for _, id := range evicted {
		require.NoError(t, analyticsSvc.SubmitFeedback(id, 1))
	}

	// only one of the two well rated queries is still cached
	require.NoError(t, store.Put(cache.Fingerprint("loved query"), "loved query", "a", nil, time.Hour, false))

	res, err := svc.ExtendQualityTTL()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Extended)
	assert.Equal(t, 1, res.Missing)

	entry, err := store.Peek(cache.Fingerprint("loved query"))
	require.NoError(t, err)
	assert.True(t, entry.QualityBoost)
}

func TestRunRecordsResult(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _, analyticsSvc := newTestLearner(t, gen)

	logQuery(t, analyticsSvc, "popular question", 3)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.PreWarm.Warmed)
	assert.Empty(t, res.Error)
	assert.False(t, res.FinishedAt.IsZero())

	status := svc.CurrentStatus()
	assert.False(t, status.Running)
	require.NotNil(t, status.LastRun)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, res.PreWarm, status.LastResult.PreWarm)

	stats, err := svc.CurrentStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Cache.TotalEntries)
	assert.True(t, stats.Enabled)
}

func TestReservedSlotBlocksConcurrentRun(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _, analyticsSvc := newTestLearner(t, gen)

	logQuery(t, analyticsSvc, "popular question", 3)

	// the slot is taken before the cycle body starts, so a concurrent Run
	// is refused even in the window between reservation and execution
	require.True(t, svc.state.tryStart())
	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	res := svc.runReserved(context.Background())
	require.NotNil(t, res)
	assert.Equal(t, 1, res.PreWarm.Warmed)
	assert.False(t, svc.IsRunning())
}

func TestAbandonReleasesReservedSlot(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _, _ := newTestLearner(t, gen)

	require.True(t, svc.state.tryStart())
	svc.state.abandon()
	assert.False(t, svc.IsRunning())
	require.True(t, svc.state.tryStart())
	svc.state.abandon()
}

func TestStatsCountsImprovementCandidates(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _, analyticsSvc := newTestLearner(t, gen)

	bad := logQuery(t, analyticsSvc, "disliked answer", 2)
	for _, id := range bad {
		require.NoError(t, analyticsSvc.SubmitFeedback(id, -1))
	}
	logQuery(t, analyticsSvc, "neutral answer", 2)

	stats, err := svc.CurrentStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ImprovementCandidates)
}

func TestResultWireNames(t *testing.T) {
	pre, err := json.Marshal(PreWarmResult{Candidates: 3, Warmed: 2, Skipped: 1, Failed: 0})
	require.NoError(t, err)
	for _, key := range []string{`"total_popular"`, `"warmed"`, `"skipped"`, `"errors"`} {
		assert.Contains(t, string(pre), key)
	}

	imp, err := json.Marshal(ImproveResult{Candidates: 2, Improved: 1, Failed: 1})
	require.NoError(t, err)
	for _, key := range []string{`"total_negative"`, `"improved"`, `"errors"`} {
		assert.Contains(t, string(imp), key)
	}

	stats, err := json.Marshal(Stats{})
	require.NoError(t, err)
	for _, key := range []string{`"cache"`, `"improvement_candidates"`, `"is_running"`, `"last_learning_run"`} {
		assert.Contains(t, string(stats), key)
	}

	status, err := json.Marshal(Status{})
	require.NoError(t, err)
	assert.Contains(t, string(status), `"is_running"`)
}
