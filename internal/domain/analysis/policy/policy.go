package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vadim/neo-publish/internal/domain/analysis/consensus"
	"github.com/vadim/neo-publish/internal/domain/analysis/entity"
	"github.com/vadim/neo-publish/internal/domain/analysis/provider"
	"github.com/vadim/neo-publish/internal/result"
)

const unknownError = "未知错误"

// Model is one language model the analysis can consult
type Model interface {
	Provider() provider.Provider
	Call(ctx context.Context, mode provider.Mode, prompt string) (entity.Object, error)
}

// Cache stores finished analyses
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// Policy produces idea analyses from one or several models
type Policy struct {
	models []Model
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Policy
type Option func(*Policy)

// WithCache enables caching of verified analyses
func WithCache(c Cache) Option {
	return func(p *Policy) {
		p.cache = c
	}
}

// New creates an analysis policy. models are consulted in the given order
// by Analyze.
func New(models []Model, logger *slog.Logger, opts ...Option) *Policy {
	p := &Policy{
		models: models,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Verify asks every model in parallel and cross-checks their answers. It
// fails only when no model answered.
func (p *Policy) Verify(ctx context.Context, req entity.Request) (*entity.VerifiedAnalysis, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := "verified:" + req.CacheKey()
	if cached := p.cached(ctx, key); cached != nil {
		return cached, nil
	}

	prompt, err := provider.Prompt(provider.Verified, req)
	if err != nil {
		return nil, err
	}

	outcomes := make([]result.Result[entity.Object], len(p.models))
	durations := make([]int64, len(p.models))

	// goroutines never return an error; failures are kept in outcomes
	var g errgroup.Group
	for i, m := range p.models {
		g.Go(func() error {
			start := p.now()
			obj, err := m.Call(ctx, provider.Verified, prompt)
			durations[i] = p.now().Sub(start).Milliseconds()
			outcomes[i] = result.From(obj, err)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]entity.ModelResult, len(p.models))
	names := make([]string, len(p.models))
	for i, m := range p.models {
		names[i] = m.Provider().String()
		results[i] = modelResult(names[i], outcomes[i], durations[i])
	}

	docs, errs := result.Partition(outcomes)
	if len(docs) == 0 {
		p.logger.Error("all analysis providers failed", "error", errors.Join(errs...))
		return nil, fmt.Errorf("%w: %w", entity.ErrAllProvidersFailed, errors.Join(errs...))
	}

	verified, score := consensus.Verify(docs)
	out := &entity.VerifiedAnalysis{
		Verified:     verified,
		ModelResults: results,
		Verification: consensus.Report(results, score),
		Metadata: entity.Metadata{
			Timestamp:      p.now().UTC(),
			ModelsUsed:     names,
			SuccessRate:    fmt.Sprintf("%d/%d", len(docs), len(p.models)),
			ConsensusScore: score,
		},
	}

	p.logger.Info("analysis verified",
		"succeeded", len(docs),
		"providers", len(p.models),
		"consensus_score", score,
	)

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, out); err != nil {
			p.logger.Warn("failed to cache analysis", "error", err)
		}
	}

	return out, nil
}

func (p *Policy) cached(ctx context.Context, key string) *entity.VerifiedAnalysis {
	if p.cache == nil {
		return nil
	}

	var cached entity.VerifiedAnalysis
	hit, err := p.cache.Get(ctx, key, &cached)
	if err != nil {
		p.logger.Warn("failed to read analysis cache", "error", err)
		return nil
	}
	if !hit {
		return nil
	}

	at := cached.Metadata.Timestamp
	cached.Metadata.Cached = true
	cached.Metadata.CachedAt = &at
	return &cached
}

func modelResult(name string, r result.Result[entity.Object], duration int64) entity.ModelResult {
	data, err := r.Unwrap()
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = unknownError
		}
		return entity.ModelResult{Model: name, Error: msg}
	}
	return entity.ModelResult{Model: name, Success: true, Duration: duration, Data: data}
}

// Analyze asks the models one at a time, in order, and returns the first
// complete answer. When every model fails it returns a template analysis
// flagged as a fallback.
func (p *Policy) Analyze(ctx context.Context, req entity.Request) (*entity.Analysis, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prompt, err := provider.Prompt(provider.Single, req)
	if err != nil {
		return nil, err
	}

	attempts := make([]func() result.Result[*entity.Analysis], len(p.models))
	for i, m := range p.models {
		attempts[i] = func() result.Result[*entity.Analysis] {
			a, err := p.analyzeWith(ctx, m, prompt)
			return result.From(a, err)
		}
	}

	return result.FirstOk(attempts...).OrElse(func(err error) *entity.Analysis {
		p.logger.Warn("analysis providers unavailable, using template", "error", err)
		return p.template(req)
	}), nil
}

func (p *Policy) analyzeWith(ctx context.Context, m Model, prompt string) (*entity.Analysis, error) {
	obj, err := m.Call(ctx, provider.Single, prompt)
	if err != nil {
		return nil, err
	}

	characteristics := obj.Lookup("characteristics")
	recommendations := obj.Lookup("recommendations")
	if characteristics == nil || recommendations == nil {
		return nil, fmt.Errorf("%s: %w", m.Provider(), entity.ErrIncompleteAnalysis)
	}

	return &entity.Analysis{
		Characteristics: characteristics,
		Recommendations: recommendations,
		Metadata: entity.Metadata{
			Timestamp: p.now().UTC(),
			Provider:  m.Provider().String(),
		},
	}, nil
}

// template is the generic analysis served when no model is reachable
func (p *Policy) template(req entity.Request) *entity.Analysis {
	location := req.UserLocation
	if location == "" {
		location = "所在城市"
	}

	characteristics, _ := json.Marshal(map[string]any{
		"category":            consensus.DefaultCategory,
		"technicalComplexity": consensus.DefaultLevel,
		"fundingRequirement":  consensus.DefaultFunding,
		"competitionLevel":    consensus.DefaultLevel,
		"aiCapabilities": map[string]bool{
			"nlp":            false,
			"cv":             false,
			"ml":             false,
			"recommendation": false,
			"generation":     false,
			"automation":     false,
		},
	})

	recommendations, _ := json.Marshal(map[string]any{
		"techStackRecommendations": map[string]any{
			"beginner": map[string]string{
				"primary":  "低代码平台 + 云服务",
				"timeline": "1-3个月",
				"reason":   "上手快，适合验证创意",
				"cost":     "5000-20000元",
			},
		},
		"researchChannels": map[string][]string{
			"online":  {"小红书", "知乎", "行业社群"},
			"offline": {location + "创业孵化器", "目标用户访谈"},
		},
		"offlineEvents": map[string]any{
			"nationalEvents": []any{},
			"localEvents":    []string{},
		},
		"customizedTimeline": map[string]map[string]string{
			"month1": {"focus": "需求验证与用户访谈"},
			"month2": {"focus": "MVP开发"},
			"month3": {"focus": "种子用户测试与迭代"},
		},
		"budgetPlan": map[string]any{
			"startupCosts":     map[string]int{"total": 50000},
			"monthlyCosts":     map[string]int{"total": 10000},
			"costOptimization": []string{"优先使用云厂商创业扶持计划", "先用低代码平台搭建MVP", "参加创业大赛争取资源"},
		},
		"teamRecommendations": map[string][]string{
			"coreTeam":     {"产品负责人", "全栈开发", "运营"},
			"advisorTypes": {"行业顾问", "技术顾问"},
		},
	})

	return &entity.Analysis{
		Characteristics: characteristics,
		Recommendations: recommendations,
		Metadata: entity.Metadata{
			Timestamp: p.now().UTC(),
			Fallback:  true,
		},
	}
}
