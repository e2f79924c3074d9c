// Package provider calls the language models behind the idea analysis.
package provider

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vadim/neo-publish/internal/config"
	"github.com/vadim/neo-publish/internal/domain/analysis/consensus"
	"github.com/vadim/neo-publish/internal/domain/analysis/entity"
	"github.com/vadim/neo-publish/internal/httpx/upstream/chatcompletion"
)

// Provider identifies a model vendor
type Provider int

const (
	DeepSeek Provider = iota
	Zhipu
	Qwen
)

// All lists the providers in preference order
var All = []Provider{DeepSeek, Zhipu, Qwen}

const (
	baseSystemPrompt = "你是一个专业的商业分析顾问。必须提供客观、准确、可验证的分析，不要编造数据。"
	jsonOnlyPrompt   = "重要提示：只返回纯JSON格式数据，不要有任何前缀文字、说明或markdown标记，直接以{开头。"
	mentorPrompt     = "你是一个专业的商业分析顾问和创业导师，擅长分析创意项目并提供个性化的指导建议。你的回答必须基于用户的创意进行深入分析，提供具体、可执行的建议。"
	notProvided      = "未提供"
)

type profile struct {
	name      string
	baseURL   string
	model     string
	system    string
	unsetNote string
}

func (p Provider) profile() profile {
	switch p {
	case DeepSeek:
		return profile{
			name:      "DeepSeek",
			baseURL:   "https://api.deepseek.com/v1",
			model:     "deepseek-chat",
			system:    baseSystemPrompt,
			unsetNote: "DeepSeek API未配置",
		}
	case Zhipu:
		return profile{
			name:      "智谱GLM",
			baseURL:   "https://open.bigmodel.cn/api/paas/v4",
			model:     "glm-4",
			system:    baseSystemPrompt + jsonOnlyPrompt,
			unsetNote: "智谱API未配置",
		}
	case Qwen:
		return profile{
			name:      "通义千问",
			baseURL:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
			model:     "qwen-plus",
			system:    baseSystemPrompt,
			unsetNote: "千问API未配置",
		}
	}
	panic(fmt.Sprintf("provider: unknown provider %d", int(p)))
}

// String returns the display name used in reports
func (p Provider) String() string { return p.profile().name }

// BaseURL returns the OpenAI-compatible endpoint
func (p Provider) BaseURL() string { return p.profile().baseURL }

// Model returns the model name sent with every request
func (p Provider) Model() string { return p.profile().model }

// Key picks the provider's API key from the configuration
func (p Provider) Key(cfg config.AI) string {
	switch p {
	case DeepSeek:
		return cfg.DeepSeekKey
	case Zhipu:
		return cfg.ZhipuKey
	case Qwen:
		return cfg.DashScopeKey
	}
	return ""
}

// Mode selects the prompt and sampling settings of a call
type Mode int

const (
	// Verified asks for the full report that is cross-checked between models
	Verified Mode = iota
	// Single asks one model for characteristics and recommendations
	Single
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

type promptData struct {
	IdeaTitle       string
	IdeaDescription string
	Location        string
	Background      string
}

// Prompt renders the user prompt of mode for req
func Prompt(mode Mode, req entity.Request) (string, error) {
	name := "verified.tmpl"
	if mode == Single {
		name = "single.tmpl"
	}

	data := promptData{
		IdeaTitle:       strings.TrimSpace(req.IdeaTitle),
		IdeaDescription: strings.TrimSpace(req.IdeaDescription),
		Location:        orNotProvided(req.UserLocation),
		Background:      orNotProvided(req.UserBackground),
	}

	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return buf.String(), nil
}

func (m Mode) settings(p Provider) (system string, temperature float64, maxTokens int) {
	switch m {
	case Single:
		return mentorPrompt, 0.7, 4000
	default:
		return p.profile().system, 0.3, 6000
	}
}

// Completer sends one chat completion
type Completer interface {
	Complete(ctx context.Context, req chatcompletion.Request) (string, error)
}

// Caller calls one provider behind its own circuit breaker
type Caller struct {
	provider Provider
	client   Completer
	breaker  *gobreaker.CircuitBreaker
}

// NewCaller creates a caller. A nil client marks the provider as not
// configured, and every call fails fast.
func NewCaller(p Provider, client Completer) *Caller {
	return &Caller{
		provider: p,
		client:   client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        p.String(),
			MaxRequests: 100,
			Interval:    5 * time.Second,
			Timeout:     3 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}),
	}
}

// NewCallers builds a caller for every provider. Providers without a key get
// a caller that always fails.
func NewCallers(cfg config.AI) []*Caller {
	callers := make([]*Caller, 0, len(All))
	for _, p := range All {
		var client Completer
		if key := p.Key(cfg); key != "" {
			client = chatcompletion.New(p.BaseURL(), key, chatcompletion.WithTimeout(cfg.Timeout))
		}
		callers = append(callers, NewCaller(p, client))
	}
	return callers
}

// Provider returns the provider this caller talks to
func (c *Caller) Provider() Provider {
	return c.provider
}

// Call sends prompt and decodes the JSON object in the answer
func (c *Caller) Call(ctx context.Context, mode Mode, prompt string) (entity.Object, error) {
	if c.client == nil {
		return nil, fmt.Errorf("%s: %w", c.provider.profile().unsetNote, entity.ErrProviderNotConfigured)
	}

	system, temperature, maxTokens := mode.settings(c.provider)
	req := chatcompletion.Request{
		Model: c.provider.Model(),
		Messages: []chatcompletion.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		content, err := c.client.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		return content, nil
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", c.provider, err)
	}

	obj, err := consensus.Parse(out.(string))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.provider, err)
	}
	return obj, nil
}

func orNotProvided(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return notProvided
	}
	return s
}
