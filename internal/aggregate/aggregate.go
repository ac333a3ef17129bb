// Package aggregate turns a batch of task outcomes into per-brand and
// per-platform metrics plus an overall brand health score.
package aggregate

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/brandlens/brandlens/internal/task"
)

// Recommendation is the completion classification the aggregator suggests to
// the caller. The state machine owns the actual transition decision.
type Recommendation string

const (
	RecommendCompleted      Recommendation = "completed"
	RecommendPartialSuccess Recommendation = "partial_success"
	RecommendFailed         Recommendation = "failed"
)

// completedThreshold is the success ratio at or above which a run counts as
// fully successful rather than partial.
const completedThreshold = 0.9

// Fixed weights for the overall health score.
const (
	weightMention      = 0.40
	weightQuality      = 0.35
	weightAvailability = 0.25
)

type BrandMetrics struct {
	Brand        string  `json:"brand"`
	MentionRate  float64 `json:"mention_rate"`
	QualityScore float64 `json:"quality_score"`
	FailureRate  float64 `json:"failure_rate"`
	ShareOfVoice float64 `json:"share_of_voice"`
	Answers      int     `json:"answers"`
}

type PlatformMetrics struct {
	Platform     string  `json:"platform"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Tasks        int     `json:"tasks"`
}

// Result is the immutable per-execution summary, written once after the
// batch finishes.
type Result struct {
	HealthScore    float64           `json:"health_score"`
	SuccessCount   int               `json:"success_count"`
	FailedCount    int               `json:"failed_count"`
	SkippedCount   int               `json:"skipped_count"`
	TotalCount     int               `json:"total_count"`
	FailureRate    float64           `json:"failure_rate"`
	Brands         []BrandMetrics    `json:"brands"`
	Platforms      []PlatformMetrics `json:"platforms"`
	Recommendation Recommendation    `json:"recommendation"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// small sentiment lexicons for scoring answer tone around a brand mention
var (
	positiveWords = []string{
		"best", "leading", "excellent", "great", "reliable", "trusted",
		"popular", "innovative", "recommended", "strong", "top",
	}
	negativeWords = []string{
		"worst", "poor", "unreliable", "avoid", "expensive", "slow",
		"outdated", "weak", "complaints", "problematic",
	}
)

// Aggregate computes the summary for one execution. Failed and skipped tasks
// are excluded from quality denominators but surface in failure rates.
func Aggregate(outcomes []task.Outcome) Result {
	result := Result{
		TotalCount:  len(outcomes),
		GeneratedAt: time.Now(),
	}
	if len(outcomes) == 0 {
		result.Recommendation = RecommendFailed
		return result
	}

	type brandAcc struct {
		total    int
		answered int
		mentions int
		quality  float64
	}
	type platformAcc struct {
		total     int
		succeeded int
		latencyMs int64
	}
	brands := make(map[string]*brandAcc)
	platforms := make(map[string]*platformAcc)

	totalMentions := 0
	for _, o := range outcomes {
		ba := brands[o.Brand]
		if ba == nil {
			ba = &brandAcc{}
			brands[o.Brand] = ba
		}
		pa := platforms[o.Platform]
		if pa == nil {
			pa = &platformAcc{}
			platforms[o.Platform] = pa
		}

		ba.total++
		pa.total++

		if !o.Success {
			if o.Error == task.ErrCircuitOpen {
				result.SkippedCount++
			} else {
				result.FailedCount++
			}
			continue
		}

		result.SuccessCount++
		ba.answered++
		pa.succeeded++
		pa.latencyMs += o.LatencyMs

		if mentions(o.Content, o.Brand) {
			ba.mentions++
			totalMentions++
		}
		ba.quality += qualityScore(o.Content, o.Brand)
	}

	result.FailureRate = float64(result.FailedCount+result.SkippedCount) / float64(result.TotalCount)

	for brand, acc := range brands {
		m := BrandMetrics{
			Brand:       brand,
			Answers:     acc.answered,
			FailureRate: float64(acc.total-acc.answered) / float64(acc.total),
		}
		if acc.answered > 0 {
			m.MentionRate = float64(acc.mentions) / float64(acc.answered)
			m.QualityScore = acc.quality / float64(acc.answered)
		}
		if totalMentions > 0 {
			m.ShareOfVoice = float64(acc.mentions) / float64(totalMentions)
		}
		result.Brands = append(result.Brands, m)
	}
	sort.Slice(result.Brands, func(i, j int) bool {
		return result.Brands[i].Brand < result.Brands[j].Brand
	})

	for p, acc := range platforms {
		m := PlatformMetrics{
			Platform:    p,
			Tasks:       acc.total,
			SuccessRate: float64(acc.succeeded) / float64(acc.total),
		}
		if acc.succeeded > 0 {
			m.AvgLatencyMs = float64(acc.latencyMs) / float64(acc.succeeded)
		}
		result.Platforms = append(result.Platforms, m)
	}
	sort.Slice(result.Platforms, func(i, j int) bool {
		return result.Platforms[i].Platform < result.Platforms[j].Platform
	})

	result.HealthScore = healthScore(result)
	result.Recommendation = recommend(result)

	return result
}

func recommend(r Result) Recommendation {
	ratio := float64(r.SuccessCount) / float64(r.TotalCount)
	switch {
	case r.SuccessCount == 0:
		return RecommendFailed
	case ratio >= completedThreshold:
		return RecommendCompleted
	default:
		return RecommendPartialSuccess
	}
}

func healthScore(r Result) float64 {
	if r.SuccessCount == 0 {
		return 0
	}

	var mentionRate, quality float64
	for _, b := range r.Brands {
		mentionRate += b.MentionRate
		quality += b.QualityScore
	}
	mentionRate /= float64(len(r.Brands))
	quality /= float64(len(r.Brands))

	availability := float64(r.SuccessCount) / float64(r.TotalCount)

	score := 100 * (weightMention*mentionRate + weightQuality*quality/100 + weightAvailability*availability)
	return math.Round(score*10) / 10
}

func mentions(content, brand string) bool {
	return strings.Contains(strings.ToLower(content), strings.ToLower(brand))
}

// qualityScore rates one answer for one brand on a 0-100 scale: 0 without a
// mention, otherwise 50 shifted by the tone of the surrounding text.
func qualityScore(content, brand string) float64 {
	if !mentions(content, brand) {
		return 0
	}

	lower := strings.ToLower(content)
	tone := 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			tone++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			tone--
		}
	}
	if tone > 5 {
		tone = 5
	}
	if tone < -5 {
		tone = -5
	}

	return 50 + float64(tone)*10
}
