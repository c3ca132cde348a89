// Package models holds the data shared across the pipeline: messages,
// agent profiles, validation results and finished runs.
package models

import (
	"time"
)

// ── Conversation ─────────────────────────────────────────────

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation. Messages are never mutated after
// they are appended to a ChatHistory.
type Message struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"` // authoring agent, empty for anonymous turns
	Content string `json:"content"`
}

// ChatHistory is an append-only, ordered conversation.
type ChatHistory []Message

// Append returns the history with msgs added at the end.
func (h ChatHistory) Append(msgs ...Message) ChatHistory {
	return append(h, msgs...)
}

// Tail returns the last n messages in conversation order.
// A non-positive n yields an empty slice.
func (h ChatHistory) Tail(n int) ChatHistory {
	if n <= 0 {
		return ChatHistory{}
	}
	if len(h) <= n {
		out := make(ChatHistory, len(h))
		copy(out, h)
		return out
	}
	out := make(ChatHistory, n)
	copy(out, h[len(h)-n:])
	return out
}

// ── Completion Boundary ──────────────────────────────────────

// GenerationRequest is built fresh for every completion call.
type GenerationRequest struct {
	Agent       string      `json:"agent,omitempty"`
	Messages    ChatHistory `json:"messages"`
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature float64     `json:"temperature"`
}

// GenerationReply is the normalized output of one completion call.
type GenerationReply struct {
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// ── Agents ───────────────────────────────────────────────────

// AgentRole selects which stage of the pipeline an agent serves.
type AgentRole string

const (
	AgentRoleDrafting   AgentRole = "drafting"
	AgentRoleDeployment AgentRole = "deployment"
)

// DefaultMaxTokens applies to profiles that do not set max_tokens.
const DefaultMaxTokens = 1000

// AgentProfile binds an agent name to a fixed system instruction and model
// configuration. Profiles are plain values; nothing holds them globally.
type AgentProfile struct {
	Name          string    `json:"name" yaml:"name" validate:"required"`
	Role          AgentRole `json:"role" yaml:"role" validate:"required,oneof=drafting deployment"`
	SystemMessage string    `json:"system_message" yaml:"system_message" validate:"required"`
	Model         string    `json:"model,omitempty" yaml:"model"`
	MaxTokens     int       `json:"max_tokens,omitempty" yaml:"max_tokens" validate:"gte=0"`
}

// EffectiveMaxTokens returns MaxTokens or DefaultMaxTokens when unset.
func (p AgentProfile) EffectiveMaxTokens() int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return DefaultMaxTokens
}

// ── Quality Gate ─────────────────────────────────────────────

// Failure describes one violated structural rule.
type Failure struct {
	RuleID      string `json:"rule_id"`
	Rule        string `json:"rule"`
	Message     string `json:"message"`     // forwarded verbatim to the drafting agent
	Remediation string `json:"remediation"` // the concrete fix, also embedded in Message
}

// ValidationResult is the outcome of one Quality Gate evaluation. Failures
// are in rule-declaration order.
type ValidationResult struct {
	Passed   bool      `json:"passed"`
	Failures []Failure `json:"failures"`
}

// ── Pipeline Run ─────────────────────────────────────────────

// Stage is a state of the pipeline state machine.
type Stage string

const (
	StageDrafting   Stage = "drafting"
	StageValidating Stage = "validating"
	StageRevising   Stage = "revising"
	StageApproved   Stage = "approved"
	StageBestEffort Stage = "best_effort"
	StageDeploying  Stage = "deploying"
	StageDone       Stage = "done"
)

// RunStatus is the review outcome of a finished run.
type RunStatus string

const (
	RunStatusApproved   RunStatus = "approved"
	RunStatusBestEffort RunStatus = "best_effort"
)

// Label is the review status written into the script artifact header.
func (s RunStatus) Label() string {
	if s == RunStatusApproved {
		return "APPROVED"
	}
	return "BEST EFFORT"
}

// Transition records the pipeline entering a stage.
type Transition struct {
	Stage Stage     `json:"stage"`
	Cycle int       `json:"cycle"`
	At    time.Time `json:"at"`
}

// PipelineRun is the result of exactly one pipeline invocation.
type PipelineRun struct {
	ID              string             `json:"id"`
	Task            string             `json:"task"`
	DraftingAgent   string             `json:"drafting_agent"`
	DeploymentAgent string             `json:"deployment_agent"`
	MaxReviewCycles int                `json:"max_review_cycles"`
	CyclesExecuted  int                `json:"cycles_executed"`
	Approved        bool               `json:"approved"`
	Status          RunStatus          `json:"status"`
	FinalScript     string             `json:"final_script"`
	InfraText       string             `json:"infra_text"`
	Transcript      ChatHistory        `json:"transcript"`
	Validations     []ValidationResult `json:"validations"`
	Transitions     []Transition       `json:"transitions"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     time.Time          `json:"completed_at"`
}

// RunSummary is the list view of a PipelineRun.
type RunSummary struct {
	ID             string    `json:"id"`
	Task           string    `json:"task"`
	Status         RunStatus `json:"status"`
	CyclesExecuted int       `json:"cycles_executed"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Summary returns the list view of the run.
func (r *PipelineRun) Summary() RunSummary {
	return RunSummary{
		ID:             r.ID,
		Task:           r.Task,
		Status:         r.Status,
		CyclesExecuted: r.CyclesExecuted,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}
}
