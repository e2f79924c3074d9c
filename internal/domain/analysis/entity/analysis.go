package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Request is an idea submitted for analysis
type Request struct {
	IdeaTitle       string `json:"ideaTitle" validate:"required"`
	IdeaDescription string `json:"ideaDescription" validate:"required"`
	UserLocation    string `json:"userLocation,omitempty"`
	UserBackground  string `json:"userBackground,omitempty"`
}

// Validate requires a non-blank title and description
func (r Request) Validate() error {
	if strings.TrimSpace(r.IdeaTitle) == "" || strings.TrimSpace(r.IdeaDescription) == "" {
		return ErrMissingIdea
	}
	return nil
}

// CacheKey identifies the request in the result cache
func (r Request) CacheKey() string {
	sum := sha256.Sum256([]byte(r.IdeaTitle + ":" + r.IdeaDescription + ":" + r.UserLocation + ":" + r.UserBackground))
	return hex.EncodeToString(sum[:])
}

// Confidence levels attached to verified items
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
)

// Characteristics is the majority view of the idea's profile
type Characteristics struct {
	Category            string          `json:"category"`
	TechnicalComplexity string          `json:"technicalComplexity"`
	FundingRequirement  string          `json:"fundingRequirement"`
	CompetitionLevel    string          `json:"competitionLevel"`
	AICapabilities      json.RawMessage `json:"aiCapabilities"`
	VerificationNotes   string          `json:"verificationNotes"`
}

// CompetitorAnalysis lists the deduplicated competitors
type CompetitorAnalysis struct {
	Competitors       []Object `json:"competitors"`
	MarketGap         string   `json:"marketGap"`
	VerificationNotes string   `json:"verificationNotes"`
}

// BeginnerStack is the verified beginner tech stack
type BeginnerStack struct {
	Primary           string          `json:"primary"`
	Timeline          json.RawMessage `json:"timeline,omitempty"`
	Reason            json.RawMessage `json:"reason,omitempty"`
	Cost              json.RawMessage `json:"cost,omitempty"`
	LearningPath      json.RawMessage `json:"learningPath"`
	Alternatives      json.RawMessage `json:"alternatives"`
	VerificationNotes string          `json:"verificationNotes"`
}

// TechStack groups stack recommendations by audience
type TechStack struct {
	Beginner BeginnerStack `json:"beginner"`
}

// OfflineEvents lists the deduplicated events
type OfflineEvents struct {
	NationalEvents    []Object        `json:"nationalEvents"`
	LocalEvents       json.RawMessage `json:"localEvents"`
	VerificationNotes string          `json:"verificationNotes"`
}

// Recommendations holds the verified and pass-through recommendation blocks
type Recommendations struct {
	TechStackRecommendations TechStack       `json:"techStackRecommendations"`
	OfflineEvents            OfflineEvents   `json:"offlineEvents"`
	ResearchChannels         json.RawMessage `json:"researchChannels,omitempty"`
	CustomizedTimeline       json.RawMessage `json:"customizedTimeline,omitempty"`
	BudgetPlan               json.RawMessage `json:"budgetPlan,omitempty"`
	TeamRecommendations      json.RawMessage `json:"teamRecommendations,omitempty"`
}

// Consensus is the analysis assembled from every successful model
type Consensus struct {
	Characteristics    Characteristics    `json:"characteristics"`
	CompetitorAnalysis CompetitorAnalysis `json:"competitorAnalysis"`
	Recommendations    Recommendations    `json:"recommendations"`
	Risks              json.RawMessage    `json:"risks"`
	SuccessCases       json.RawMessage    `json:"successCases"`
	NextSteps          json.RawMessage    `json:"nextSteps"`
	ExecutionSupport   json.RawMessage    `json:"executionSupport"`
}

// ModelResult is the raw outcome of one provider
type ModelResult struct {
	Model    string `json:"model"`
	Success  bool   `json:"success"`
	Duration int64  `json:"duration"`
	Data     Object `json:"data"`
	Error    string `json:"error,omitempty"`
}

// ModelPerformance summarises one provider in the verification report
type ModelPerformance struct {
	Model        string `json:"model"`
	Success      bool   `json:"success"`
	ResponseTime string `json:"responseTime"`
	Error        string `json:"error,omitempty"`
}

// DataQuality classifies the consensus score
type DataQuality struct {
	ConsensusScore int    `json:"consensusScore"`
	Status         string `json:"status"`
	Recommendation string `json:"recommendation"`
}

// Verification is the report attached to a verified analysis
type Verification struct {
	Summary          string             `json:"summary"`
	ModelPerformance []ModelPerformance `json:"modelPerformance"`
	DataQuality      DataQuality        `json:"dataQuality"`
}

// Metadata describes how an analysis was produced
type Metadata struct {
	Timestamp      time.Time  `json:"timestamp"`
	ModelsUsed     []string   `json:"modelsUsed,omitempty"`
	SuccessRate    string     `json:"successRate,omitempty"`
	ConsensusScore int        `json:"consensusScore"`
	Cached         bool       `json:"cached"`
	CachedAt       *time.Time `json:"cachedAt,omitempty"`
	Provider       string     `json:"provider,omitempty"`
	Fallback       bool       `json:"fallback,omitempty"`
}

// VerifiedAnalysis is the cross-checked answer of all providers
type VerifiedAnalysis struct {
	Verified     Consensus     `json:"verified"`
	ModelResults []ModelResult `json:"modelResults"`
	Verification Verification  `json:"verification"`
	Metadata     Metadata      `json:"metadata"`
}

// Analysis is the answer of a single provider
type Analysis struct {
	Characteristics json.RawMessage `json:"characteristics"`
	Recommendations json.RawMessage `json:"recommendations"`
	Metadata        Metadata        `json:"metadata"`
}
