package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/infra/metrics"
)

var _ adapter.ContentProvider = (*ModelProvider)(nil)

const (
	maxCommitMessageLen = 72
	maxSummaryLen       = 180
	maxReviewCommentLen = 600
)

var dotRuns = regexp.MustCompile(`\.{2,}`)

const changeSystemPrompt = `You are an autonomous software agent generating a concise git change artifact.
Return JSON only with keys: relative_path, content, commit_message, summary.
Constraints:
- relative_path must be repository-relative and safe.
- content must be markdown and actionable.
- commit_message must be <= 72 chars.
- summary must be <= 180 chars.`

const reviewSystemPrompt = `You are an autonomous code reviewer.
Return JSON only with keys: decision and comment.
decision must be one of: approve, request_changes.`

// ModelProvider asks a chat model for change content and reviews. Any failed
// call (transport, empty or malformed output) is answered by the rule-based
// provider instead. Decomposition is always rule-based.
type ModelProvider struct {
	chat            adapter.ChatModel
	fallback        *RuleBasedProvider
	timeout         time.Duration
	maxPromptTokens int
	log             *zerolog.Logger
}

func NewModelProvider(chat adapter.ChatModel, fallback *RuleBasedProvider, timeout time.Duration, maxPromptTokens int, logger *zerolog.Logger) *ModelProvider {
	if fallback == nil {
		fallback = NewRuleBasedProvider()
	}
	l := logger.With().Str("component", "provider").Str("provider", chat.Name()).Logger()
	return &ModelProvider{chat: chat, fallback: fallback, timeout: timeout, maxPromptTokens: maxPromptTokens, log: &l}
}

func (p *ModelProvider) Name() string { return p.chat.Name() }

func (p *ModelProvider) Decompose(ctx context.Context, req adapter.DecomposeRequest) ([]adapter.WorkItemDraft, error) {
	return p.fallback.Decompose(ctx, req)
}

type changePayload struct {
	RelativePath  string `json:"relative_path"`
	Content       string `json:"content"`
	CommitMessage string `json:"commit_message"`
	Summary       string `json:"summary"`
}

func (p *ModelProvider) ProposeChange(ctx context.Context, req adapter.ChangeRequest) (*adapter.Change, error) {
	user := fmt.Sprintf("Project: %s\nAgent: %s\nBranch: %s\nWork item id: %s\nWork item title: %s\nWork item description: %s",
		req.Project.Name, req.Agent, req.Branch, req.Item.ID, req.Item.Title, req.Item.Description)

	var out changePayload
	err := p.chatJSON(ctx, changeSystemPrompt, user, &out)
	if err == nil && strings.TrimSpace(out.Content) == "" {
		err = errors.New("content is empty")
	}
	if err != nil {
		p.fellBack("propose_change", req.Item.ID, err)
		change, ferr := p.fallback.ProposeChange(ctx, req)
		if ferr != nil {
			return nil, ferr
		}
		change.Summary += " Fallback used due to model synthesis error."
		return change, nil
	}

	commit := strings.TrimSpace(strings.ReplaceAll(out.CommitMessage, "\n", " "))
	if commit == "" {
		commit = "agent: implement work item " + req.Item.ID
	}
	summary := truncate(strings.TrimSpace(out.Summary), maxSummaryLen)
	if summary == "" {
		summary = fmt.Sprintf("Generated via %s provider.", p.Name())
	}
	return &adapter.Change{
		Files: []adapter.FileChange{{
			Path:    normalizeRelativePath(out.RelativePath, req.Item.ID),
			Content: strings.TrimSpace(out.Content),
		}},
		CommitMessage: truncate(commit, maxCommitMessageLen),
		Summary:       summary,
	}, nil
}

type reviewPayload struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

func (p *ModelProvider) Review(ctx context.Context, req adapter.ReviewRequest) (model.Review, error) {
	user := fmt.Sprintf("Project: %s\nRole: %s\nWork item: %s\nDescription: %s\nChecks passed: %t",
		req.Project.Name, req.Role, req.Item.Title, req.Item.Description, req.ChecksPassed)

	var out reviewPayload
	if err := p.chatJSON(ctx, reviewSystemPrompt, user, &out); err != nil {
		p.fellBack("review", req.Item.ID, err)
		return p.fallback.Review(ctx, req)
	}
	decision := model.DecisionApprove
	if strings.ToLower(strings.TrimSpace(out.Decision)) == string(model.DecisionRequestChanges) {
		decision = model.DecisionRequestChanges
	}
	comment := truncate(strings.TrimSpace(out.Comment), maxReviewCommentLen)
	if comment == "" {
		comment = "Automated review completed."
	}
	return model.Review{Role: req.Role, Decision: decision, Comment: comment}, nil
}

func (p *ModelProvider) chatJSON(ctx context.Context, system, user string, dst any) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	msgs := []adapter.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
	msgs = p.fitBudget(ctx, msgs)

	raw, _, err := p.chat.ChatWithUsage(ctx, msgs)
	if err != nil {
		return err
	}
	raw = stripCodeFence(raw)
	if raw == "" {
		return errors.New("model returned no output")
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("parse model output: %w", err)
	}
	return nil
}

// fitBudget trims the user prompt until the messages fit maxPromptTokens.
func (p *ModelProvider) fitBudget(ctx context.Context, msgs []adapter.Message) []adapter.Message {
	if p.maxPromptTokens <= 0 {
		return msgs
	}
	trimmed := false
	for i := 0; i < 8; i++ {
		n, err := p.chat.CountTokens(ctx, msgs)
		if err != nil || n <= p.maxPromptTokens {
			break
		}
		last := &msgs[len(msgs)-1]
		keep := len(last.Content) * p.maxPromptTokens / n
		if keep >= len(last.Content) {
			keep = len(last.Content) - 1
		}
		if keep <= 0 {
			break
		}
		last.Content = strings.ToValidUTF8(last.Content[:keep], "")
		trimmed = true
	}
	if trimmed {
		metrics.IncPromptTrimmed(p.chat.Name(), p.chat.Model())
	}
	return msgs
}

func (p *ModelProvider) fellBack(op, itemID string, err error) {
	metrics.IncProviderFallback(p.chat.Name(), op)
	p.log.Warn().Err(err).Str("operation", op).Str("work_item_id", itemID).Msg("model call failed; using rule-based output")
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// normalizeRelativePath keeps model-chosen paths repository-relative.
func normalizeRelativePath(rel, itemID string) string {
	fallback := fmt.Sprintf("agent_notes/work_item_%s.md", itemID)
	p := strings.ReplaceAll(strings.TrimSpace(rel), `\`, "/")
	p = strings.TrimLeft(p, "/")
	p = dotRuns.ReplaceAllString(p, "")
	p = strings.TrimLeft(path.Clean("/"+p), "/")
	if p == "" {
		return fallback
	}
	return p
}
