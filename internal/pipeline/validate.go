// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// Score bounds.
const (
	minScore = 0
	maxScore = 10
	minVibe  = 1
	maxVibe  = 10
)

// Validate checks required fields and score ranges. It returns a
// *types.ValidationError listing every problem, or nil.
func Validate(r types.CafeReview) error {
	var problems []string
	required := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, name+" is required")
		}
	}
	required("cafeName", r.CafeName)
	required("cafeAddress", r.CafeAddress)
	required("slug", r.Slug)
	required("excerpt", r.Excerpt)
	required("vibeDescription", r.Narrative.VibeDescription)
	required("theStory", r.Narrative.TheStory)
	required("craftExpertise", r.Narrative.CraftExpertise)
	required("setsApart", r.Narrative.SetsApart)
	required("cityReference", r.CityID)

	for _, s := range []struct {
		name string
		v    float64
	}{
		{"overallScore", r.Scores.Overall},
		{"coffeeScore", r.Scores.Coffee},
		{"atmosphereScore", r.Scores.Atmosphere},
		{"serviceScore", r.Scores.Service},
		{"valueScore", r.Scores.Value},
		{"foodScore", r.Scores.Food},
	} {
		if math.IsNaN(s.v) || s.v < minScore || s.v > maxScore {
			problems = append(problems, fmt.Sprintf("%s %g out of range [%d, %d]", s.name, s.v, minScore, maxScore))
		}
	}

	switch v := r.Scores.Vibe; {
	case math.IsNaN(v) || v != math.Trunc(v):
		problems = append(problems, fmt.Sprintf("vibeScore %g is not an integer", v))
	case v < minVibe || v > maxVibe:
		problems = append(problems, fmt.Sprintf("vibeScore %g out of range [%d, %d]", v, minVibe, maxVibe))
	}

	if r.Location != nil {
		if math.Abs(r.Location.Lat) > 90 || math.Abs(r.Location.Lon) > 180 {
			problems = append(problems, fmt.Sprintf("location %g,%g is not a coordinate", r.Location.Lat, r.Location.Lon))
		}
	}
	for _, l := range [][2]string{{"instagramLink", r.InstagramURL}, {"facebookLink", r.FacebookURL}} {
		if l[1] != "" && !isWebURL(l[1]) {
			problems = append(problems, fmt.Sprintf("%s %q is not an http(s) URL", l[0], l[1]))
		}
	}

	if len(problems) > 0 {
		return &types.ValidationError{Problems: problems}
	}
	return nil
}

func isWebURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// roundScores rounds every score to one decimal.
func roundScores(s types.Scores) types.Scores {
	r := func(v float64) float64 { return math.Round(v*10) / 10 }
	return types.Scores{
		Overall:    r(s.Overall),
		Coffee:     r(s.Coffee),
		Atmosphere: r(s.Atmosphere),
		Service:    r(s.Service),
		Value:      r(s.Value),
		Food:       r(s.Food),
		Vibe:       s.Vibe,
	}
}
