// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the collection queue: for each city it searches
// for cafes, then takes every cafe through enrichment, geocoding, slugging
// and validation. Progress is checkpointed after every cafe so an
// interrupted run resumes where it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/cafe-collector/internal/cache"
	"github.com/pdiddy/cafe-collector/internal/checkpoint"
	"github.com/pdiddy/cafe-collector/internal/geocode"
	"github.com/pdiddy/cafe-collector/internal/llm"
	"github.com/pdiddy/cafe-collector/internal/metrics"
	"github.com/pdiddy/cafe-collector/internal/slug"
	"github.com/pdiddy/cafe-collector/pkg/types"
)

// LLM finds and describes cafes.
type LLM interface {
	// SearchCafes returns up to n cafes in city, leaving out the named ones.
	SearchCafes(ctx context.Context, city string, n int, exclude []string) ([]types.CafeCandidate, error)
	EnrichCafe(ctx context.Context, cand types.CafeCandidate) (*llm.EnrichReply, error)
}

// Geocoder resolves addresses.
type Geocoder interface {
	Resolve(ctx context.Context, address, city string) (geocode.Result, error)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	LLM LLM

	// Geocoder may be nil; reviews then have no location.
	Geocoder Geocoder

	// Cache holds search snapshots and exported reviews in the
	// processed_data tier.
	Cache        cache.Store
	ProcessedTTL time.Duration

	Checkpoint *checkpoint.Manager
	Slugs      *slug.Registry
	Metrics    *metrics.Metrics

	// Out receives one progress line per cafe. Nil discards them.
	Out io.Writer

	// Now stamps the publish date. Defaults to time.Now.
	Now func() time.Time

	// Author is written to every review.
	Author string
}

// Pipeline processes a queue. It is not safe for concurrent use.
type Pipeline struct {
	Deps
}

// New returns a Pipeline over deps.
func New(deps Deps) *Pipeline {
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Slugs == nil {
		deps.Slugs = slug.NewRegistry()
	}
	return &Pipeline{Deps: deps}
}

// Run processes queue in order, skipping items before the checkpoint's
// queue position and cafes the checkpoint records as complete. Reviews
// exported by earlier runs are restored first so the summary covers the
// whole collection. Run returns early only on a fatal configuration error,
// a checkpoint write failure or context cancellation.
func (p *Pipeline) Run(ctx context.Context, queue []types.QueueItem) (Summary, error) {
	var sum Summary
	if err := p.Checkpoint.BindQueue(QueueID(queue)); err != nil {
		return sum, err
	}
	if err := p.restore(ctx, &sum); err != nil {
		return sum, err
	}

	start := p.Checkpoint.QueuePosition()
	for i, item := range queue {
		if i < start {
			fmt.Fprintf(p.Out, "skipped %s (queue position %d)\n", item.City, start)
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		failed := sum.Failed
		if err := p.processCity(ctx, item, &sum); err != nil {
			return sum, err
		}
		// A city with transient failures stays at the current position so
		// the next run retries it.
		if sum.Failed == failed {
			if err := p.Checkpoint.AdvanceQueue(i + 1); err != nil {
				return sum, err
			}
		}
		p.Metrics.CityFinished()
	}
	return sum, nil
}

// QueueID fingerprints a queue so a checkpoint position is only reused
// for the same queue.
func QueueID(queue []types.QueueItem) string {
	parts := make([]string, 0, len(queue))
	for _, q := range queue {
		parts = append(parts, q.City+"|"+strconv.Itoa(q.CafesNeeded)+"|"+q.CityID)
	}
	return cache.Key(parts...)
}

func reviewKey(cafeKey string) string {
	return cache.Key("review", cafeKey)
}

func searchKey(item types.QueueItem, round int) string {
	if round == 0 {
		return cache.Key("search", strings.ToLower(item.City), strconv.Itoa(item.CafesNeeded))
	}
	return cache.Key("search", strings.ToLower(item.City), strconv.Itoa(item.CafesNeeded), "topup", strconv.Itoa(round))
}

// LoadReviews returns the cached reviews of every cafe cp records as
// exported, in checkpoint order, and the keys whose review is no longer
// cached.
func LoadReviews(ctx context.Context, store cache.Store, cp *checkpoint.Manager) (reviews []types.CafeReview, missing []string) {
	for _, key := range cp.Exported() {
		review, ok := cache.GetJSON[types.CafeReview](ctx, store, cache.TierProcessed, reviewKey(key))
		if !ok {
			missing = append(missing, key)
			continue
		}
		reviews = append(reviews, review)
	}
	return reviews, missing
}

// restore loads reviews exported by earlier runs and reserves their slugs.
// A review that is no longer cached is forgotten by the checkpoint so it
// is collected again.
func (p *Pipeline) restore(ctx context.Context, sum *Summary) error {
	reviews, missing := LoadReviews(ctx, p.Cache, p.Checkpoint)
	for _, key := range missing {
		slog.Warn("exported review missing from cache, collecting it again", "cafe", key)
		if err := p.Checkpoint.Forget(key); err != nil {
			return err
		}
	}
	for _, r := range reviews {
		p.Slugs.Add(r.Slug)
	}
	sum.Reviews = append(sum.Reviews, reviews...)
	sum.Restored = len(reviews)
	if sum.Restored > 0 {
		fmt.Fprintf(p.Out, "restored %d reviews from previous runs\n", sum.Restored)
	}
	return nil
}

// maxSearchRounds bounds the searches per city: the first search and the
// top-ups that replace rejected, duplicate or missing cafes.
const maxSearchRounds = 3

// processCity searches item's city and processes the candidates. While
// fewer than CafesNeeded cafes are filled, it searches again for the
// remainder with every name seen so far excluded. Rejected cafes do not
// fill a place; exported, skipped and failed ones do.
func (p *Pipeline) processCity(ctx context.Context, item types.QueueItem, sum *Summary) error {
	fmt.Fprintf(p.Out, "searching %s (%d cafes)\n", item.City, item.CafesNeeded)
	seen := map[string]bool{}
	var names []string
	filled := 0
	for round := 0; round < maxSearchRounds && filled < item.CafesNeeded; round++ {
		want := item.CafesNeeded - filled
		if round > 0 {
			slog.Info("searching for more cafes", "city", item.City, "round", round, "needed", want, "exclude", len(names))
		}
		cands, err := p.candidates(ctx, item, round, want, names)
		if err != nil {
			if abort(ctx, err) {
				return err
			}
			fmt.Fprintf(p.Out, "failed  %s: %v\n", item.City, err)
			sum.Failed++
			p.Metrics.CafeOutcome(metrics.OutcomeFailed)
			return nil
		}

		taken := 0
		for _, cand := range cands {
			if taken == want {
				break
			}
			if seen[cand.Key()] {
				continue
			}
			seen[cand.Key()] = true
			names = append(names, cand.CafeName)
			taken++

			if err := ctx.Err(); err != nil {
				return err
			}
			rejected, err := p.processCafe(ctx, item, cand, sum)
			if err != nil {
				return err
			}
			if !rejected {
				filled++
			}
		}
		if taken == 0 {
			break
		}
	}
	if filled < item.CafesNeeded {
		slog.Warn("collected fewer cafes than needed", "city", item.City, "needed", item.CafesNeeded, "filled", filled)
	}
	return nil
}

// candidates returns the result of one search round for item, from the
// processed_data snapshot when one exists.
func (p *Pipeline) candidates(ctx context.Context, item types.QueueItem, round, n int, exclude []string) ([]types.CafeCandidate, error) {
	key := searchKey(item, round)
	cands, ok := cache.GetJSON[[]types.CafeCandidate](ctx, p.Cache, cache.TierProcessed, key)
	p.Metrics.CacheLookup(string(cache.TierProcessed), ok)
	if ok {
		return cands, nil
	}
	cands, err := p.LLM.SearchCafes(ctx, item.City, n, exclude)
	if err != nil {
		return nil, err
	}
	for i := range cands {
		cands[i].City = item.City
	}
	if err := cache.PutJSON(ctx, p.Cache, cache.TierProcessed, key, cands, p.ProcessedTTL); err != nil {
		slog.Warn("caching search snapshot", "city", item.City, "error", err)
	}
	return cands, nil
}

// processCafe takes one candidate to a final outcome and reports whether
// the cafe is rejected, now or by an earlier run.
func (p *Pipeline) processCafe(ctx context.Context, item types.QueueItem, cand types.CafeCandidate, sum *Summary) (bool, error) {
	key := cand.Key()
	if p.Checkpoint.IsComplete(key) {
		fmt.Fprintf(p.Out, "skipped %s (already complete)\n", cand.CafeName)
		sum.Skipped++
		p.Metrics.CafeOutcome(metrics.OutcomeSkipped)
		return p.Checkpoint.IsRejected(key), nil
	}

	review, state, err := p.build(ctx, item, cand)
	switch {
	case err == nil:
		if err := cache.PutJSON(ctx, p.Cache, cache.TierProcessed, reviewKey(key), review, p.ProcessedTTL); err != nil {
			fmt.Fprintf(p.Out, "failed  %s: %v\n", cand.CafeName, err)
			sum.Failed++
			p.Metrics.CafeOutcome(metrics.OutcomeFailed)
			return false, nil
		}
		if err := p.Checkpoint.RecordCompletion(key); err != nil {
			return false, err
		}
		p.Slugs.Add(review.Slug)
		fmt.Fprintf(p.Out, "exported %s (%s)\n", cand.CafeName, review.Slug)
		sum.Exported++
		sum.Reviews = append(sum.Reviews, review)
		p.Metrics.CafeOutcome(metrics.OutcomeExported)

	case abort(ctx, err):
		return false, err

	case rejectable(err):
		reason := err.Error()
		if err := p.Checkpoint.RecordRejection(key, reason); err != nil {
			return false, err
		}
		slog.Warn("cafe rejected", "cafe", cand.CafeName, "city", item.City, "state", state, "reason", reason)
		fmt.Fprintf(p.Out, "rejected %s: %v\n", cand.CafeName, err)
		sum.Rejected++
		sum.Rejections = append(sum.Rejections, Rejection{
			Key: key, CafeName: cand.CafeName, City: item.City, State: state, Reason: reason,
		})
		p.Metrics.CafeOutcome(metrics.OutcomeRejected)
		return true, nil

	default:
		fmt.Fprintf(p.Out, "failed  %s: %v\n", cand.CafeName, err)
		sum.Failed++
		p.Metrics.CafeOutcome(metrics.OutcomeFailed)
	}
	return false, nil
}

// abort reports errors that end the run.
func abort(ctx context.Context, err error) bool {
	return errors.Is(err, types.ErrFatalConfig) || ctx.Err() != nil ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// rejectable reports errors that permanently reject one cafe. A refused
// request (ErrRequest) leaves the cafe to be retried on the next run.
func rejectable(err error) bool {
	return errors.Is(err, types.ErrValidation) ||
		errors.Is(err, types.ErrMalformedResponse)
}

// build takes one candidate through enrichment, geocoding, slugging and
// validation. On failure it returns the state that failed.
func (p *Pipeline) build(ctx context.Context, item types.QueueItem, cand types.CafeCandidate) (types.CafeReview, State, error) {
	state := Enriching
	reply, err := p.LLM.EnrichCafe(ctx, cand)
	if err != nil {
		return types.CafeReview{}, state, err
	}

	now := p.Now()
	review := types.CafeReview{
		CafeKey:      cand.Key(),
		CafeName:     cand.CafeName,
		AuthorName:   p.Author,
		PublishDate:  time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Excerpt:      strings.TrimSpace(reply.Excerpt),
		Scores:       reply.Scores(),
		Narrative:    reply.Narrative(),
		CafeAddress:  cand.CafeAddress,
		City:         item.City,
		CityID:       item.CityID,
		InstagramURL: strings.TrimSpace(reply.InstagramLink),
		FacebookURL:  strings.TrimSpace(reply.FacebookLink),
	}

	state = Geocoding
	if p.Geocoder != nil {
		res, err := p.Geocoder.Resolve(ctx, cand.CafeAddress, item.City)
		switch {
		case errors.Is(err, types.ErrRequest):
			slog.Warn("geocoding refused address, continuing without location", "cafe", cand.CafeName, "error", err)
		case err != nil:
			return types.CafeReview{}, state, err
		case res.Found:
			review.Location = &types.Location{Lat: res.Lat, Lon: res.Lon}
			review.PlaceID = res.PlaceID
		}
	}

	state = Slugging
	street := slug.StreetName(cand.CafeAddress)
	if street == "" {
		street = cand.Neighborhood
	}
	if slug.Segments(cand.CafeName, street, item.City) < 3 {
		slog.Warn("slug has fewer than three segments", "cafe", cand.CafeName, "address", cand.CafeAddress)
	}
	// Recorded in the registry only once the review is exported.
	review.Slug = slug.Propose(cand.CafeName, street, item.City, p.Slugs)

	state = Validated
	if err := Validate(review); err != nil {
		return types.CafeReview{}, state, err
	}
	review.Scores = roundScores(review.Scores)
	return review, Exported, nil
}
