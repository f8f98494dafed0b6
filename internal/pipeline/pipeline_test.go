// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cafe-collector/internal/cache"
	"github.com/pdiddy/cafe-collector/internal/checkpoint"
	"github.com/pdiddy/cafe-collector/internal/export"
	"github.com/pdiddy/cafe-collector/internal/geocode"
	"github.com/pdiddy/cafe-collector/internal/llm"
	"github.com/pdiddy/cafe-collector/internal/slug"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

func ptr(v float64) *float64 { return &v }

func goodReply() *llm.EnrichReply {
	return &llm.EnrichReply{
		Excerpt:         "A roaster with a big heart.",
		OverallScore:    ptr(8.7),
		CoffeeScore:     ptr(9.1),
		AtmosphereScore: ptr(8.4),
		ServiceScore:    ptr(8.6),
		ValueScore:      ptr(8.0),
		FoodScore:       ptr(7.9),
		VibeScore:       ptr(8),
		VibeDescription: "Bright and busy.",
		TheStory:        "Started small.",
		CraftExpertise:  "Precise pour-overs.",
		SetsApart:       "Roasts on site.",
	}
}

// fakeLLM serves canned search results per city and enrichment per cafe
// key or name. Searches that exclude names are served from topUp when the
// city has an entry there.
type fakeLLM struct {
	search      map[string][]types.CafeCandidate
	topUp       map[string][]types.CafeCandidate
	searchErr   error
	enrich      map[string]*llm.EnrichReply
	enrichErr   map[string]error
	searchCalls int
	requested   []int
	excludes    [][]string
	enriched    []string
}

func (f *fakeLLM) SearchCafes(_ context.Context, city string, n int, exclude []string) ([]types.CafeCandidate, error) {
	f.searchCalls++
	f.requested = append(f.requested, n)
	f.excludes = append(f.excludes, append([]string(nil), exclude...))
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(exclude) > 0 {
		if cands, ok := f.topUp[city]; ok {
			return cands, nil
		}
	}
	return f.search[city], nil
}

func (f *fakeLLM) EnrichCafe(_ context.Context, c types.CafeCandidate) (*llm.EnrichReply, error) {
	f.enriched = append(f.enriched, c.CafeName)
	for _, k := range []string{c.Key(), c.CafeName} {
		if err := f.enrichErr[k]; err != nil {
			return nil, err
		}
		if r, ok := f.enrich[k]; ok {
			return r, nil
		}
	}
	return goodReply(), nil
}

type fakeGeocoder struct {
	results map[string]geocode.Result
	err     error
	cities  []string
}

func (f *fakeGeocoder) Resolve(_ context.Context, address, city string) (geocode.Result, error) {
	f.cities = append(f.cities, city)
	if f.err != nil {
		return geocode.Result{}, f.err
	}
	return f.results[address], nil
}

type env struct {
	dir   string
	store cache.Store
	llm   *fakeLLM
	geo   *fakeGeocoder
	out   bytes.Buffer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	store, err := cache.OpenSQLite(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &env{
		dir:   dir,
		store: store,
		llm: &fakeLLM{
			search:    map[string][]types.CafeCandidate{},
			topUp:     map[string][]types.CafeCandidate{},
			enrich:    map[string]*llm.EnrichReply{},
			enrichErr: map[string]error{},
		},
		geo:   &fakeGeocoder{results: map[string]geocode.Result{}},
	}
}

// pipeline builds a Pipeline with a freshly loaded checkpoint, as a new
// process would.
func (e *env) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	cp, err := checkpoint.Load(filepath.Join(e.dir, checkpoint.DefaultFile))
	require.NoError(t, err)
	return New(Deps{
		LLM:          e.llm,
		Geocoder:     e.geo,
		Cache:        e.store,
		ProcessedTTL: 7 * 24 * time.Hour,
		Checkpoint:   cp,
		Slugs:        slug.NewRegistry(),
		Out:          &e.out,
		Now:          func() time.Time { return time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC) },
		Author:       "Chris Jordan",
	})
}

func cafe(name, addr, city string) types.CafeCandidate {
	return types.CafeCandidate{CafeName: name, CafeAddress: addr, City: city}
}

func TestRun_SantaFeEndToEnd(t *testing.T) {
	e := newEnv(t)
	addr := "1600 Lena St Ste A2, Santa Fe, NM 87505"
	e.llm.search["Santa Fe"] = []types.CafeCandidate{cafe("Iconik Coffee Roasters", addr, "Santa Fe")}
	e.geo.results[addr] = geocode.Result{Lat: 35.665228, Lon: -105.9641583, PlaceID: "ChIJ-iconik", Found: true}

	sum, err := e.pipeline(t).Run(context.Background(), []types.QueueItem{{City: "Santa Fe", CafesNeeded: 1, CityID: "city123"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Exported)
	require.Len(t, sum.Reviews, 1)

	r := sum.Reviews[0]
	assert.Equal(t, "iconik-coffee-roasters-lena-santa-fe", r.Slug)
	assert.Equal(t, &types.Location{Lat: 35.665228, Lon: -105.9641583}, r.Location)
	assert.Equal(t, "Chris Jordan", r.AuthorName)
	assert.Equal(t, "2026-10-19", r.PublishDate.Format(time.DateOnly))

	doc := export.Contentful{}.Document(sum.Reviews)
	require.Len(t, doc.Entries, 1)
	f := doc.Entries[0].Fields
	assert.Equal(t, "Iconik Coffee Roasters", f["cafeName"]["en-US"])
	assert.Equal(t, "city123", f["cityReference"]["en-US"].(export.LinkRef).Sys.ID)
	assert.Regexp(t, `^iconik-coffee-roasters-lena-.*`, f["slug"]["en-US"])
	assert.Equal(t, []string{"Santa Fe"}, e.geo.cities)
}

func TestRun_ResumeProcessesOnlyRemaining(t *testing.T) {
	e := newEnv(t)
	a := cafe("Alpha", "1 Main St, Springfield", "Springfield")
	b := cafe("Bravo", "2 Oak Ave, Springfield", "Springfield")
	c := cafe("Charlie", "3 Elm Rd, Springfield", "Springfield")
	queue := []types.QueueItem{{City: "Springfield", CafesNeeded: 3, CityID: "city9"}}

	// First run: C fails transiently, A and B are exported.
	e.llm.search["Springfield"] = []types.CafeCandidate{a, b, c}
	e.llm.enrichErr["Charlie"] = &types.RemoteError{Service: "fake", StatusCode: 503, Kind: types.ErrTransient}
	first, err := e.pipeline(t).Run(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Exported)
	assert.Equal(t, 1, first.Failed)

	// Second run in a new process: only C is processed.
	delete(e.llm.enrichErr, "Charlie")
	e.llm.enriched = nil
	second, err := e.pipeline(t).Run(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, []string{"Charlie"}, e.llm.enriched)
	assert.Equal(t, 1, second.Exported)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 2, second.Restored)
	assert.Equal(t, 1, e.llm.searchCalls, "search served from the processed snapshot")

	doc := export.Contentful{}.Document(second.Reviews)
	var names []string
	for _, entry := range doc.Entries {
		names = append(names, entry.Fields["cafeName"]["en-US"].(string))
	}
	assert.ElementsMatch(t, []string{"Alpha", "Bravo", "Charlie"}, names)

	// Third run: nothing left to do, queue position skips the city.
	e.llm.enriched = nil
	third, err := e.pipeline(t).Run(context.Background(), queue)
	require.NoError(t, err)
	assert.Empty(t, e.llm.enriched)
	assert.Len(t, third.Reviews, 3)
}

func TestRun_CheckpointFromEarlierRunSkipsCompleted(t *testing.T) {
	e := newEnv(t)
	a := cafe("Alpha", "1 Main St, Springfield", "Springfield")
	b := cafe("Bravo", "2 Oak Ave, Springfield", "Springfield")
	c := cafe("Charlie", "3 Elm Rd, Springfield", "Springfield")
	e.llm.search["Springfield"] = []types.CafeCandidate{a, b, c}
	queue := []types.QueueItem{{City: "Springfield", CafesNeeded: 3, CityID: "city9"}}

	// Seed a checkpoint recording A and B as complete with their reviews cached.
	p := e.pipeline(t)
	ctx := context.Background()
	for _, cand := range []types.CafeCandidate{a, b} {
		review, _, err := p.build(ctx, queue[0], cand)
		require.NoError(t, err)
		require.NoError(t, cache.PutJSON(ctx, e.store, cache.TierProcessed, reviewKey(cand.Key()), review, time.Hour))
		require.NoError(t, p.Checkpoint.RecordCompletion(cand.Key()))
	}

	sum, err := e.pipeline(t).Run(ctx, queue)
	require.NoError(t, err)
	// Alpha and Bravo were enriched while seeding; the run adds only Charlie.
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, e.llm.enriched)
	assert.Equal(t, 1, sum.Exported)
	require.Len(t, sum.Reviews, 3)

	slugs := map[string]bool{}
	for _, r := range sum.Reviews {
		assert.False(t, slugs[r.Slug], "duplicate slug %s", r.Slug)
		slugs[r.Slug] = true
	}
}

func TestRun_RejectionsAreCheckpointed(t *testing.T) {
	e := newEnv(t)
	e.llm.search["Springfield"] = []types.CafeCandidate{
		cafe("Bad Vibes", "1 Main St, Springfield", "Springfield"),
		cafe("Garbled", "2 Oak Ave, Springfield", "Springfield"),
		cafe("Fine", "3 Elm Rd, Springfield", "Springfield"),
	}
	bad := goodReply()
	bad.VibeScore = ptr(11)
	e.llm.enrich["Bad Vibes"] = bad
	e.llm.enrichErr["Garbled"] = &retryExhausted{err: types.Malformed("reply is not JSON")}
	queue := []types.QueueItem{{City: "Springfield", CafesNeeded: 3, CityID: "city9"}}

	sum, err := e.pipeline(t).Run(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Exported)
	assert.Equal(t, 2, sum.Rejected)
	require.Len(t, sum.Rejections, 2)
	assert.Equal(t, Validated, sum.Rejections[0].State)
	assert.Contains(t, sum.Rejections[0].Reason, "vibeScore 11 out of range")
	assert.Equal(t, Enriching, sum.Rejections[1].State)

	var report bytes.Buffer
	sum.Report(&report)
	assert.Contains(t, report.String(), "1 exported, 2 rejected")
	assert.Contains(t, report.String(), "Bad Vibes while validating")

	// Rejected cafes are not retried.
	e.llm.enriched = nil
	delete(e.llm.enrichErr, "Garbled")
	_, err = e.pipeline(t).Run(context.Background(), []types.QueueItem{{City: "Springfield", CafesNeeded: 3, CityID: "city9"}, {City: "Other", CafesNeeded: 1, CityID: "c2"}})
	require.NoError(t, err)
	assert.Empty(t, e.llm.enriched)
}

// retryExhausted mimics the error surfaced after the retry policy gives up.
type retryExhausted struct{ err error }

func (r *retryExhausted) Error() string { return "giving up: " + r.err.Error() }
func (r *retryExhausted) Unwrap() error { return r.err }

func TestRun_FatalAborts(t *testing.T) {
	e := newEnv(t)
	e.llm.searchErr = &types.RemoteError{Service: "fake", StatusCode: 401, Kind: types.ErrFatalConfig}
	_, err := e.pipeline(t).Run(context.Background(), []types.QueueItem{
		{City: "A", CafesNeeded: 1, CityID: "a"},
		{City: "B", CafesNeeded: 1, CityID: "b"},
	})
	assert.ErrorIs(t, err, types.ErrFatalConfig)
	assert.Equal(t, 1, e.llm.searchCalls)
}

func TestRun_GeocodeNotFoundKeepsCafe(t *testing.T) {
	e := newEnv(t)
	e.llm.search["Springfield"] = []types.CafeCandidate{cafe("Alpha", "1 Main St, Springfield", "Springfield")}

	sum, err := e.pipeline(t).Run(context.Background(), []types.QueueItem{{City: "Springfield", CafesNeeded: 1, CityID: "city9"}})
	require.NoError(t, err)
	require.Len(t, sum.Reviews, 1)
	assert.Nil(t, sum.Reviews[0].Location)
}

func TestRun_GeocodeTransientFailureNotCheckpointed(t *testing.T) {
	e := newEnv(t)
	e.llm.search["Springfield"] = []types.CafeCandidate{cafe("Alpha", "1 Main St, Springfield", "Springfield")}
	e.geo.err = &types.RemoteError{Service: "geocoding", StatusCode: 503, Kind: types.ErrTransient}
	queue := []types.QueueItem{{City: "Springfield", CafesNeeded: 1, CityID: "city9"}}

	p := e.pipeline(t)
	sum, err := p.Run(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.False(t, p.Checkpoint.IsComplete(types.CafeKey("Springfield", "Alpha", "1 Main St, Springfield")))
	assert.Equal(t, 0, p.Checkpoint.QueuePosition())
	assert.True(t, sum.HasFailures())
}

func TestRun_DuplicateNamesGetSuffixedSlugs(t *testing.T) {
	e := newEnv(t)
	e.llm.search["Springfield"] = []types.CafeCandidate{
		cafe("Best Coffee", "1 Main St, Springfield", "Springfield"),
		cafe("Best Coffee", "1 Main St Unit 2, Springfield", "Springfield"),
	}
	sum, err := e.pipeline(t).Run(context.Background(), []types.QueueItem{{City: "Springfield", CafesNeeded: 2, CityID: "city9"}})
	require.NoError(t, err)
	require.Len(t, sum.Reviews, 2)
	assert.Equal(t, "best-coffee-main-springfield", sum.Reviews[0].Slug)
	assert.Equal(t, "best-coffee-main-springfield-2", sum.Reviews[1].Slug)
}

func TestRun_CancelledContext(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.pipeline(t).Run(ctx, []types.QueueItem{{City: "A", CafesNeeded: 1, CityID: "a"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, e.llm.searchCalls)
}

func TestRun_ExpiredReviewIsCollectedAgain(t *testing.T) {
	e := newEnv(t)
	e.llm.search["Springfield"] = []types.CafeCandidate{cafe("Alpha", "1 Main St, Springfield", "Springfield")}
	queue := []types.QueueItem{{City: "Springfield", CafesNeeded: 1, CityID: "city9"}}

	_, err := e.pipeline(t).Run(context.Background(), queue)
	require.NoError(t, err)

	_, err = e.store.Clear(context.Background(), cache.TierProcessed)
	require.NoError(t, err)

	e.llm.enriched = nil
	sum, err := e.pipeline(t).Run(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, e.llm.enriched)
	assert.Equal(t, 1, sum.Exported)
	assert.Len(t, sum.Reviews, 1)
}

func TestRun_RefusedEnrichmentIsRetried(t *testing.T) {
	e := newEnv(t)
	alpha := cafe("Alpha", "1 Main St, Springfield", "Springfield")
	e.llm.search["Springfield"] = []types.CafeCandidate{alpha}
	e.llm.enrichErr["Alpha"] = &types.RemoteError{Service: "openai", StatusCode: 404, Message: "model not found", Kind: types.ErrRequest}
	queue := []types.QueueItem{{City: "Springfield", CafesNeeded: 1, CityID: "city9"}}

	p := e.pipeline(t)
	first, err := p.Run(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)
	assert.Zero(t, first.Rejected)
	assert.False(t, p.Checkpoint.IsComplete(alpha.Key()))
	assert.Equal(t, 0, p.Checkpoint.QueuePosition())

	delete(e.llm.enrichErr, "Alpha")
	second, err := e.pipeline(t).Run(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Exported)

	doc := export.Contentful{}.Document(second.Reviews)
	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "Alpha", doc.Entries[0].Fields["cafeName"]["en-US"])
}

func TestRun_TopUpReplacesRejectedAndDuplicates(t *testing.T) {
	e := newEnv(t)
	alpha := cafe("Alpha", "1 Main St, Springfield", "Springfield")
	e.llm.search["Springfield"] = []types.CafeCandidate{
		alpha,
		alpha,
		cafe("Bad Vibes", "2 Oak Ave, Springfield", "Springfield"),
	}
	e.llm.topUp["Springfield"] = []types.CafeCandidate{alpha, cafe("Charlie", "3 Elm Rd, Springfield", "Springfield")}
	bad := goodReply()
	bad.VibeScore = ptr(11)
	e.llm.enrich["Bad Vibes"] = bad

	sum, err := e.pipeline(t).Run(context.Background(), []types.QueueItem{{City: "Springfield", CafesNeeded: 2, CityID: "city9"}})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Exported)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, []string{"Alpha", "Bad Vibes", "Charlie"}, e.llm.enriched)

	assert.Equal(t, []int{2, 1}, e.llm.requested)
	require.Len(t, e.llm.excludes, 2)
	assert.Empty(t, e.llm.excludes[0])
	assert.Equal(t, []string{"Alpha", "Bad Vibes"}, e.llm.excludes[1])
}

func TestRun_ShortSearchTopsUpUntilNothingNew(t *testing.T) {
	e := newEnv(t)
	e.llm.search["Springfield"] = []types.CafeCandidate{cafe("Alpha", "1 Main St, Springfield", "Springfield")}
	e.llm.topUp["Springfield"] = nil
	queue := []types.QueueItem{{City: "Springfield", CafesNeeded: 3, CityID: "city9"}}

	p := e.pipeline(t)
	sum, err := p.Run(context.Background(), queue)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Exported)
	assert.Equal(t, []int{3, 2}, e.llm.requested, "an empty top-up ends the search")
	assert.Equal(t, 1, p.Checkpoint.QueuePosition())
}

func TestRun_RejectedCafeDoesNotReserveSlug(t *testing.T) {
	e := newEnv(t)
	first := cafe("Best Coffee", "1 Main St, Springfield", "Springfield")
	second := cafe("Best Coffee", "1 Main St Unit 2, Springfield", "Springfield")
	e.llm.search["Springfield"] = []types.CafeCandidate{first, second}
	bad := goodReply()
	bad.VibeScore = ptr(11)
	e.llm.enrich[first.Key()] = bad

	sum, err := e.pipeline(t).Run(context.Background(), []types.QueueItem{{City: "Springfield", CafesNeeded: 2, CityID: "city9"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Rejected)
	require.Len(t, sum.Reviews, 1)
	assert.Equal(t, "best-coffee-main-springfield", sum.Reviews[0].Slug)
}
