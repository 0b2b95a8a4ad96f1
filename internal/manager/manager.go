// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package manager is the per-step service an agent loop talks to.
package manager

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/agentledger/internal/budget"
	"github.com/jeranaias/agentledger/internal/history"
	"github.com/jeranaias/agentledger/internal/model"
	"github.com/jeranaias/agentledger/internal/tokens"
	"github.com/jeranaias/agentledger/internal/util"
)

// ErrHistoryTooLong signals that the trailing state message alone
// exceeds the remaining budget and cannot be truncated meaningfully.
// Reduce the system prompt or the task, or raise the ceiling.
var ErrHistoryTooLong = errors.New("manager: history too long to trim within budget")

// initType labels seed entries so they can be told apart from the
// running conversation.
const initType = "init"

// =============================================================================
// SETTINGS
// =============================================================================

// Settings configures a Manager.
type Settings struct {
	// MaxInputTokens is the prompt ceiling (default 128000).
	MaxInputTokens int

	// MessageContext is optional extra task context seeded after the
	// system prompt.
	MessageContext string

	// SensitiveData maps placeholder keys to secret values that must
	// never be stored verbatim.
	SensitiveData map[string]string

	// AvailableFilePaths are seeded as a hint message when non-empty.
	AvailableFilePaths []string

	// Estimator prices messages before storage (default: heuristic).
	Estimator tokens.Estimator

	// Policy drives trimming. Zero-value fields take the trim defaults;
	// note the trim pipeline preserves 5 recent entries, not the
	// eviction default of 3.
	Policy budget.Policy
}

// normalize applies setting defaults.
func (s Settings) normalize() Settings {
	if s.MaxInputTokens <= 0 {
		s.MaxInputTokens = 128000
	}
	if s.Estimator == nil {
		s.Estimator = tokens.NewHeuristic(0, 0)
	}
	if s.Policy.PreserveRecent <= 0 {
		s.Policy.PreserveRecent = 5
	}
	s.Policy = budget.New(s.Policy)
	return s
}

// =============================================================================
// ACTION RESULTS
// =============================================================================

// ActionResult is the outcome of one executed action, reported back by
// the caller alongside the next state observation.
type ActionResult struct {
	// ExtractedContent is content the action produced.
	ExtractedContent string

	// Error is the failure text, if the action failed.
	Error string

	// IncludeInMemory pins the result into history as its own entry
	// instead of riding along with the transient state message.
	IncludeInMemory bool
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns a ledger for one agent session.
type Manager struct {
	task     string
	settings Settings
	ledger   *history.Ledger
}

// New creates a manager over the given ledger. A fresh (empty) ledger is
// seeded with the system prompt, task framing, and a worked example of
// the expected output; a ledger restored from a snapshot is left as-is.
func New(task, systemPrompt string, settings Settings, ledger *history.Ledger) (*Manager, error) {
	if ledger == nil {
		ledger = history.New()
	}
	m := &Manager{
		task:     task,
		settings: settings.normalize(),
		ledger:   ledger,
	}
	if ledger.Len() == 0 {
		if err := m.seed(systemPrompt); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Ledger exposes the managed ledger, e.g. for snapshotting.
func (m *Manager) Ledger() *history.Ledger {
	return m.ledger
}

// seed writes the initial message sequence into an empty ledger.
func (m *Manager) seed(systemPrompt string) error {
	if err := m.add(model.NewSystemMessage(systemPrompt), initType); err != nil {
		return err
	}

	if m.settings.MessageContext != "" {
		msg := model.NewHumanMessage("Context for the task: " + m.settings.MessageContext)
		if err := m.add(msg, initType); err != nil {
			return err
		}
	}

	taskMsg := model.NewHumanMessage(fmt.Sprintf(
		`Your ultimate task is: """%s""". If you achieved your ultimate task, stop everything and use the done action in the next step to complete the task. If not, continue as usual.`,
		m.task))
	if err := m.add(taskMsg, initType); err != nil {
		return err
	}

	if len(m.settings.SensitiveData) > 0 {
		if err := m.add(model.NewHumanMessage(m.sensitiveDataNotice()), initType); err != nil {
			return err
		}
	}

	if err := m.add(model.NewHumanMessage("Example output:"), initType); err != nil {
		return err
	}
	if err := m.ledger.AddAgentTurn(exampleDecision()); err != nil {
		return err
	}

	if err := m.add(model.NewHumanMessage("[Your task history memory starts here]"), ""); err != nil {
		return err
	}

	if len(m.settings.AvailableFilePaths) > 0 {
		msg := model.NewHumanMessage("Here are file paths you can use: " +
			strings.Join(m.settings.AvailableFilePaths, ", "))
		if err := m.add(msg, initType); err != nil {
			return err
		}
	}
	return nil
}

// exampleDecision is the worked example seeded into fresh ledgers so
// the model sees the expected decision shape before its first step.
func exampleDecision() map[string]any {
	return map[string]any{
		"current_state": map[string]string{
			"evaluation_previous_goal": "Success - reached the search results page.",
			"memory":                   "Searched for the product and opened the results. Currently at step 1.",
			"next_goal":                "Click the first relevant result to open the product page.",
		},
		"action": []map[string]any{
			{"click_element": map[string]int{"index": 127}},
		},
	}
}

// =============================================================================
// APPEND OPERATIONS
// =============================================================================

// add filters, prices, and appends a message.
func (m *Manager) add(msg model.Message, messageType string) error {
	msg = m.filterSensitive(msg)
	cost := m.settings.Estimator.EstimateMessage(&msg)
	return m.ledger.Add(msg, history.Metadata{Tokens: cost, MessageType: messageType})
}

// addAt is add with an explicit position.
func (m *Manager) addAt(msg model.Message, messageType string, position int) error {
	msg = m.filterSensitive(msg)
	cost := m.settings.Estimator.EstimateMessage(&msg)
	return m.ledger.AddAt(msg, history.Metadata{Tokens: cost, MessageType: messageType}, position)
}

// AddNewTask records a task change mid-session.
func (m *Manager) AddNewTask(task string) error {
	msg := model.NewHumanMessage(fmt.Sprintf(
		`Your new ultimate task is: """%s""". Take the previous context into account and finish your new ultimate task.`,
		task))
	if err := m.add(msg, ""); err != nil {
		return err
	}
	m.task = task
	return nil
}

// AddStateMessage appends the next observation. Results flagged for
// memory are pinned first as their own entries; the rest of the result
// detail is the caller's to fold into the observation itself, which the
// trim pipeline may later drop or truncate.
func (m *Manager) AddStateMessage(observation model.Message, results []ActionResult) error {
	for _, r := range results {
		if !r.IncludeInMemory {
			continue
		}
		if r.ExtractedContent != "" {
			if err := m.add(model.NewHumanMessage("Action result: "+r.ExtractedContent), ""); err != nil {
				return err
			}
		}
		if r.Error != "" {
			// Only the last line carries the signal; stack traces are noise.
			trimmed := strings.TrimRight(r.Error, "\n")
			lines := strings.Split(trimmed, "\n")
			if err := m.add(model.NewHumanMessage("Action error: "+lines[len(lines)-1]), ""); err != nil {
				return err
			}
		}
	}
	return m.add(observation, "")
}

// AddModelOutput appends the model's decision as a paired agent turn.
func (m *Manager) AddModelOutput(output any) error {
	return m.ledger.AddAgentTurn(output)
}

// AddToolMessage records a standalone tool result with a fresh
// invocation id.
func (m *Manager) AddToolMessage(content string) error {
	msg := model.NewToolMessage(content, m.ledger.IssueToolID())
	return m.add(msg, "")
}

// AddPlan inserts a plan as an ai message. A negative position appends.
func (m *Manager) AddPlan(plan string, position int) error {
	if plan == "" {
		return nil
	}
	if position < 0 {
		return m.add(model.NewAIMessage(plan), "plan")
	}
	return m.addAt(model.NewAIMessage(plan), "plan", position)
}

// RemoveTrailingState drops a just-added observation for a retry.
func (m *Manager) RemoveTrailingState() bool {
	return m.ledger.RemoveTrailingState()
}

// =============================================================================
// PROMPT ASSEMBLY
// =============================================================================

// Prompt returns the ordered message sequence for the next model call.
func (m *Manager) Prompt() []model.Message {
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("manager: prompt of %d messages, %d/%d tokens",
			m.ledger.Len(), m.ledger.TotalTokens(), m.settings.MaxInputTokens)
	}
	return m.ledger.Messages()
}

// =============================================================================
// BUDGET TRIMMING
// =============================================================================

// TrimToBudget brings the ledger back under the token ceiling before a
// model call: first summarizing compression (the digest is re-injected
// after the system prompt), then sliding-window eviction, and as a last
// resort truncation of the trailing state message. Returns true when
// the ledger still exceeds the ceiling afterwards; that overrun is the
// caller's to handle.
func (m *Manager) TrimToBudget() (overBudget bool, err error) {
	maxTokens := m.settings.MaxInputTokens
	if m.ledger.TotalTokens() <= maxTokens {
		return false, nil
	}

	// Aim at 80% of the ceiling so the next few turns fit without
	// immediately re-triggering a trim.
	target := maxTokens * 8 / 10

	if res := m.settings.Policy.Compress(m.ledger, target); res.Compressed() {
		log.Infof("manager: compressed %d entries (%d tokens) into digest", res.Removed, res.TokensFreed)
		if err := m.addAt(model.NewSystemMessage(res.Digest), "summary", 1); err != nil {
			return true, err
		}
	}

	if m.ledger.TotalTokens() > maxTokens {
		res := m.settings.Policy.SlidingWindow(m.ledger, target)
		if res.Removed > 0 {
			log.Infof("manager: evicted %d entries (%d tokens)", res.Removed, res.TokensFreed)
		}
	}

	if m.ledger.TotalTokens() > maxTokens {
		if err := m.truncateTrailingState(); err != nil {
			return true, err
		}
	}

	return m.ledger.TotalTokens() > maxTokens, nil
}

// truncateTrailingState shrinks the last state observation when the
// eviction passes could not reach the ceiling. Entries are immutable,
// so the observation is removed and re-added in reduced form: images
// dropped first, then text cut proportionally to the overrun.
func (m *Manager) truncateTrailingState() error {
	diff := m.ledger.TotalTokens() - m.settings.MaxInputTokens
	if diff <= 0 || m.ledger.Len() == 0 {
		return nil
	}

	last, err := m.ledger.At(m.ledger.Len() - 1)
	if err != nil {
		return err
	}
	if last.Message.Role != model.RoleHuman {
		// Nothing safe to truncate; leave the overrun for the caller.
		return nil
	}

	// Image parts go first; the remaining overrun is judged against the
	// text-only cost, so an image-heavy observation is not mistaken for
	// untruncatable history.
	text := last.Message.Text()
	reduced := model.NewHumanMessage(text)
	cost := m.settings.Estimator.EstimateMessage(&reduced)
	diff -= last.Metadata.Tokens - cost

	if diff > 0 {
		proportion := float64(diff) / float64(cost+1)
		if proportion > 0.99 {
			return fmt.Errorf("%w: need to remove %d of %d tokens from the last message",
				ErrHistoryTooLong, diff, cost)
		}
		runes := util.RuneLen(text)
		cut := int(float64(runes) * proportion)
		if cut >= runes {
			cut = runes - 1
		}
		if cut > 0 {
			reduced = model.NewHumanMessage(util.TruncateRunesNoEllipsis(text, runes-cut))
		}
	}

	if !m.ledger.RemoveTrailingState() {
		return nil
	}

	log.Infof("manager: truncated trailing state message to fit budget")
	return m.add(reduced, "")
}
