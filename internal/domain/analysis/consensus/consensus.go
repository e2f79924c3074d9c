// Package consensus cross-checks the analyses of several models and merges
// them into one answer.
package consensus

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/vadim/neo-publish/internal/domain/analysis/entity"
)

// Defaults used when no model answered a field
const (
	DefaultCategory    = "待确认"
	DefaultLevel       = "medium"
	DefaultFunding     = "待评估"
	DefaultMarketGap   = "待分析"
	DefaultPrimary     = "待评估"
	noCompetitor       = "暂无直接竞品"
	maxAlternatives    = 8
	alternativesPrefix = 50
)

// Providers is the number of models a verified analysis consults
const Providers = 3

// Score bands. These are calibration constants, not derived values.
const (
	ExcellentScore = 80
	GoodScore      = 60
	FairScore      = 40
	TrustedScore   = GoodScore
)

var (
	fenceJSON   = regexp.MustCompile("```json\n?")
	fence       = regexp.MustCompile("```\n?")
	techSplitRe = regexp.MustCompile(`[、+,，]`)
)

// CleanContent strips markdown fences and any prose around the outermost
// JSON object of a model answer
func CleanContent(content string) string {
	cleaned := strings.TrimSpace(content)
	cleaned = fenceJSON.ReplaceAllString(cleaned, "")
	cleaned = fence.ReplaceAllString(cleaned, "")

	if first := strings.Index(cleaned, "{"); first > 0 {
		cleaned = cleaned[first:]
	}
	if last := strings.LastIndex(cleaned, "}"); last > 0 && last < len(cleaned)-1 {
		cleaned = cleaned[:last+1]
	}

	return strings.TrimSpace(cleaned)
}

// Parse decodes a cleaned model answer
func Parse(content string) (entity.Object, error) {
	var obj entity.Object
	if err := json.Unmarshal([]byte(CleanContent(content)), &obj); err != nil {
		return nil, fmt.Errorf("decoding analysis: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("decoding analysis: not an object")
	}
	return obj, nil
}

// MostCommon returns the most frequent value. Ties go to the value seen
// first. It returns "" for an empty slice.
func MostCommon(values []string) string {
	counts := make(map[string]int, len(values))
	best, bestCount := "", 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// Verify merges the successful analyses. docs must hold at least one
// analysis; the first one supplies the blocks that are not cross-checked.
func Verify(docs []entity.Object) (entity.Consensus, int) {
	var first entity.Object
	if len(docs) > 0 {
		first = docs[0]
	}

	c := entity.Consensus{
		Characteristics:    Characteristics(docs),
		CompetitorAnalysis: Competitors(docs),
		Recommendations: entity.Recommendations{
			TechStackRecommendations: TechStack(docs),
			OfflineEvents:            Events(docs),
			ResearchChannels:         first.Lookup("recommendations", "researchChannels"),
			CustomizedTimeline:       first.Lookup("recommendations", "customizedTimeline"),
			BudgetPlan:               first.Lookup("recommendations", "budgetPlan"),
			TeamRecommendations:      first.Lookup("recommendations", "teamRecommendations"),
		},
		Risks:            first.RawOr(map[string]any{}, "risks"),
		SuccessCases:     first.RawOr([]any{}, "successCases"),
		NextSteps:        first.RawOr(map[string]any{}, "nextSteps"),
		ExecutionSupport: first.RawOr(map[string]any{}, "executionSupport"),
	}

	return c, Score(docs)
}

// Characteristics takes the majority category, complexity and competition level
func Characteristics(docs []entity.Object) entity.Characteristics {
	categories := values(docs, "characteristics", "category")
	complexities := values(docs, "characteristics", "technicalComplexity")
	competition := values(docs, "characteristics", "competitionLevel")

	var first entity.Object
	if len(docs) > 0 {
		first = docs[0]
	}

	return entity.Characteristics{
		Category:            orDefault(MostCommon(categories), DefaultCategory),
		TechnicalComplexity: orDefault(MostCommon(complexities), DefaultLevel),
		FundingRequirement:  orDefault(first.Text("characteristics", "fundingRequirement"), DefaultFunding),
		CompetitionLevel:    orDefault(MostCommon(competition), DefaultLevel),
		AICapabilities:      first.RawOr(map[string]any{}, "characteristics", "aiCapabilities"),
		VerificationNotes:   fmt.Sprintf("%d/%d 个模型达成共识", len(categories), Providers),
	}
}

// Competitors deduplicates competitors by name and rates each by how many
// models named it
func Competitors(docs []entity.Object) entity.CompetitorAnalysis {
	mentions := mentionCounts(docs, "competitorAnalysis", "competitors")

	var out []entity.Object
	seen := make(map[string]bool)
	confirmed := 0

	for _, d := range docs {
		for _, comp := range d.Objects("competitorAnalysis", "competitors") {
			name := comp.Text("name")
			if name == "" || name == noCompetitor || seen[name] {
				continue
			}
			seen[name] = true

			n := mentions[name]
			confidence := entity.ConfidenceMedium
			if n >= 2 {
				confidence = entity.ConfidenceHigh
				confirmed++
			}
			out = append(out, comp.With("confidence", confidence).With("mentionedBy", n))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return mentionedBy(out[i]) > mentionedBy(out[j])
	})

	var first entity.Object
	if len(docs) > 0 {
		first = docs[0]
	}

	if out == nil {
		out = []entity.Object{}
	}

	return entity.CompetitorAnalysis{
		Competitors:       out,
		MarketGap:         orDefault(first.Text("competitorAnalysis", "marketGap"), DefaultMarketGap),
		VerificationNotes: fmt.Sprintf("发现%d个竞品，其中%d个被多个模型确认", len(out), confirmed),
	}
}

// TechStack keeps the first primary stack. Alternatives come from the first
// analysis, or else from the technologies named across all primaries.
func TechStack(docs []entity.Object) entity.TechStack {
	beginner := []string{"recommendations", "techStackRecommendations", "beginner"}
	at := func(key string) []string { return append(append([]string{}, beginner...), key) }

	var primaries []string
	var technologies []string
	seen := make(map[string]bool)

	for _, d := range docs {
		primary := d.Text(at("primary")...)
		if primary == "" {
			continue
		}
		primaries = append(primaries, primary)

		if !d.IsString(at("primary")...) {
			if r := []rune(primary); len(r) > alternativesPrefix {
				primary = string(r[:alternativesPrefix])
			}
			if !seen[primary] {
				seen[primary] = true
				technologies = append(technologies, primary)
			}
			continue
		}

		for _, tech := range techSplitRe.Split(primary, -1) {
			tech = strings.TrimSpace(tech)
			if tech != "" && !seen[tech] {
				seen[tech] = true
				technologies = append(technologies, tech)
			}
		}
	}

	if len(technologies) > maxAlternatives {
		technologies = technologies[:maxAlternatives]
	}
	if technologies == nil {
		technologies = []string{}
	}

	var first entity.Object
	if len(docs) > 0 {
		first = docs[0]
	}

	primary := DefaultPrimary
	if len(primaries) > 0 {
		primary = primaries[0]
	}

	return entity.TechStack{
		Beginner: entity.BeginnerStack{
			Primary:           primary,
			Timeline:          first.Lookup(at("timeline")...),
			Reason:            first.Lookup(at("reason")...),
			Cost:              first.Lookup(at("cost")...),
			LearningPath:      first.RawOr(map[string]any{}, at("learningPath")...),
			Alternatives:      first.RawOr(technologies, at("alternatives")...),
			VerificationNotes: fmt.Sprintf("%d个模型提供了技术栈建议", len(primaries)),
		},
	}
}

// Events deduplicates national events by name and lists high confidence
// events first
func Events(docs []entity.Object) entity.OfflineEvents {
	path := []string{"recommendations", "offlineEvents", "nationalEvents"}
	mentions := mentionCounts(docs, path...)

	var out []entity.Object
	seen := make(map[string]bool)

	for _, d := range docs {
		for _, ev := range d.Objects(path...) {
			name := ev.Text("name")
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true

			n := mentions[name]
			confidence := ev.Text("confidence")
			if confidence == "" {
				confidence = entity.ConfidenceMedium
				if n >= 2 {
					confidence = entity.ConfidenceHigh
				}
			}
			out = append(out, ev.With("confidence", confidence).With("mentionedBy", n))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		hi, hj := out[i].Text("confidence") == entity.ConfidenceHigh, out[j].Text("confidence") == entity.ConfidenceHigh
		if hi != hj {
			return hi
		}
		return mentionedBy(out[i]) > mentionedBy(out[j])
	})

	high := 0
	for _, ev := range out {
		if ev.Text("confidence") == entity.ConfidenceHigh {
			high++
		}
	}

	var first entity.Object
	if len(docs) > 0 {
		first = docs[0]
	}

	if out == nil {
		out = []entity.Object{}
	}

	return entity.OfflineEvents{
		NationalEvents:    out,
		LocalEvents:       first.RawOr([]any{}, "recommendations", "offlineEvents", "localEvents"),
		VerificationNotes: fmt.Sprintf("发现%d个活动，其中%d个高可信度", len(out), high),
	}
}

// Score is the share of compared fields on which all models agree, in
// percent. A field is compared only when at least two models answered it.
func Score(docs []entity.Object) int {
	agreements, total := 0, 0

	for _, field := range []string{"category", "technicalComplexity", "competitionLevel"} {
		vals := values(docs, "characteristics", field)
		if len(vals) < 2 {
			continue
		}
		total++
		if Agree(vals) {
			agreements++
		}
	}

	if total == 0 {
		return 0
	}
	return int(math.Round(float64(agreements) / float64(total) * 100))
}

// Agree reports whether every value equals the first
func Agree(values []string) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// Status names the band a score falls into
func Status(score int) string {
	switch {
	case score >= ExcellentScore:
		return "excellent"
	case score >= GoodScore:
		return "good"
	case score >= FairScore:
		return "fair"
	default:
		return "poor"
	}
}

// Report builds the verification report for the providers' outcomes
func Report(results []entity.ModelResult, score int) entity.Verification {
	succeeded := 0
	perf := make([]entity.ModelPerformance, len(results))
	for i, r := range results {
		if r.Success {
			succeeded++
		}
		perf[i] = entity.ModelPerformance{
			Model:        r.Model,
			Success:      r.Success,
			ResponseTime: fmt.Sprintf("%.2f秒", float64(r.Duration)/1000),
			Error:        r.Error,
		}
	}

	recommendation := "数据存在分歧，建议人工审核"
	if score >= TrustedScore {
		recommendation = "数据可信度高，可直接使用"
	}

	return entity.Verification{
		Summary:          fmt.Sprintf("%d/%d个模型成功返回，共识度%d%%", succeeded, len(results), score),
		ModelPerformance: perf,
		DataQuality: entity.DataQuality{
			ConsensusScore: score,
			Status:         Status(score),
			Recommendation: recommendation,
		},
	}
}

// values collects the non-empty texts at path across docs
func values(docs []entity.Object, path ...string) []string {
	var out []string
	for _, d := range docs {
		if v := d.Text(path...); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// mentionCounts counts for every name how many docs list it at path
func mentionCounts(docs []entity.Object, path ...string) map[string]int {
	counts := make(map[string]int)
	for _, d := range docs {
		named := make(map[string]bool)
		for _, item := range d.Objects(path...) {
			if name := item.Text("name"); name != "" {
				named[name] = true
			}
		}
		for name := range named {
			counts[name]++
		}
	}
	return counts
}

func mentionedBy(o entity.Object) int {
	var n int
	_ = json.Unmarshal(o["mentionedBy"], &n)
	return n
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
