// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package budget implements eviction and compression over a history ledger.
package budget

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/agentledger/internal/history"
	"github.com/jeranaias/agentledger/internal/model"
	"github.com/jeranaias/agentledger/internal/util"
)

// =============================================================================
// POLICY CONFIGURATION
// =============================================================================

// Defaults for the policy knobs. The values are load-bearing for
// callers that tuned their ceilings around them; change with care.
const (
	// DefaultPreserveRecent is how many trailing entries sliding-window
	// eviction always keeps.
	DefaultPreserveRecent = 3

	// DefaultKeepRecent is how many trailing entries compression never
	// touches.
	DefaultKeepRecent = 5

	// DefaultSummarizeLimit caps how many removed entries contribute a
	// line to the digest.
	DefaultSummarizeLimit = 5

	// stateLineMaxRunes bounds the state excerpt in a digest line.
	stateLineMaxRunes = 100
)

// Policy holds the tunable knobs for both strategies. The zero value is
// usable; zero fields fall back to the defaults above.
type Policy struct {
	// PreserveRecent is the trailing-entry count exempt from eviction.
	PreserveRecent int

	// KeepRecent is the trailing-entry count exempt from compression.
	KeepRecent int

	// SummarizeLimit caps digest lines for compressed entries.
	SummarizeLimit int
}

// New creates a policy, applying defaults for zero or negative values.
func New(p Policy) Policy {
	if p.PreserveRecent <= 0 {
		p.PreserveRecent = DefaultPreserveRecent
	}
	if p.KeepRecent <= 0 {
		p.KeepRecent = DefaultKeepRecent
	}
	if p.SummarizeLimit <= 0 {
		p.SummarizeLimit = DefaultSummarizeLimit
	}
	return p
}

// Default returns the policy with all defaults applied.
func Default() Policy {
	return New(Policy{})
}

// =============================================================================
// SLIDING-WINDOW EVICTION
// =============================================================================

// EvictionResult reports what a sliding-window pass did.
type EvictionResult struct {
	// Removed is the number of entries evicted.
	Removed int

	// TokensFreed is the summed cost of evicted entries.
	TokensFreed int

	// OverBudget is set when preserved entries alone exceed the ceiling
	// and eviction terminated without reaching it. Non-fatal; the caller
	// may truncate content upstream or raise the ceiling.
	OverBudget bool
}

// SlidingWindow evicts the oldest unpreserved entries until the ledger
// total fits maxTokens. Preserved entries are every system message plus
// the last PreserveRecent entries by position (when the ledger holds
// more than PreserveRecent entries); they are never removed, whatever
// the ceiling. A ledger already within budget is left untouched.
func (p Policy) SlidingWindow(l *history.Ledger, maxTokens int) EvictionResult {
	p = New(p)
	if l.TotalTokens() <= maxTokens {
		return EvictionResult{}
	}

	preserved := make(map[int]bool)
	entries := l.Entries()
	for i, e := range entries {
		if e.Message.Role == model.RoleSystem {
			preserved[i] = true
		}
	}
	if len(entries) > p.PreserveRecent {
		for i := len(entries) - p.PreserveRecent; i < len(entries); i++ {
			preserved[i] = true
		}
	}

	var result EvictionResult
	i := 0
	for l.TotalTokens() > maxTokens && i < l.Len() {
		if preserved[i] {
			i++
			continue
		}

		entry, err := l.At(i)
		if err != nil {
			break
		}
		if err := l.RemoveAt(i); err != nil {
			break
		}
		result.Removed++
		result.TokensFreed += entry.Metadata.Tokens

		// Removal shifted everything after i down by one.
		shifted := make(map[int]bool, len(preserved))
		for idx := range preserved {
			if idx > i {
				shifted[idx-1] = true
			} else {
				shifted[idx] = true
			}
		}
		preserved = shifted
	}

	result.OverBudget = l.TotalTokens() > maxTokens
	if result.Removed > 0 {
		log.Debugf("budget: sliding window evicted %d entries (%d tokens), total now %d/%d",
			result.Removed, result.TokensFreed, l.TotalTokens(), maxTokens)
	}
	if result.OverBudget {
		log.Debugf("budget: preserved entries alone exceed ceiling (%d > %d)", l.TotalTokens(), maxTokens)
	}
	return result
}

// =============================================================================
// SUMMARIZING COMPRESSION
// =============================================================================

// CompressionResult reports what a compression pass did.
type CompressionResult struct {
	// Digest is the human-readable summary of removed entries. Empty
	// when nothing was compressed.
	Digest string

	// Removed is the number of entries removed.
	Removed int

	// TokensFreed is the summed cost of removed entries.
	TokensFreed int
}

// Compressed reports whether the pass removed anything.
func (r CompressionResult) Compressed() bool {
	return r.Removed > 0
}

// Compress removes every non-system entry outside the last KeepRecent
// positions and returns a digest describing the first SummarizeLimit of
// them. System messages and the most recent entries are never touched,
// regardless of budget pressure; when that leaves no candidates the
// pass reports nothing compressed even if the ledger is over budget.
//
// The digest is not reinserted here: the caller owns that decision.
func (p Policy) Compress(l *history.Ledger, maxTokens int) CompressionResult {
	p = New(p)
	if l.TotalTokens() <= maxTokens {
		return CompressionResult{}
	}

	entries := l.Entries()
	end := len(entries) - p.KeepRecent
	if end < 0 {
		end = 0
	}

	var candidates []int
	for i := 0; i < end; i++ {
		if entries[i].Message.Role != model.RoleSystem {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return CompressionResult{}
	}

	digest := p.buildDigest(entries, candidates)

	var result CompressionResult
	result.Digest = digest
	// Remove from the highest position down so earlier indices stay valid.
	for j := len(candidates) - 1; j >= 0; j-- {
		idx := candidates[j]
		result.TokensFreed += entries[idx].Metadata.Tokens
		if err := l.RemoveAt(idx); err != nil {
			log.Debugf("budget: compression remove at %d failed: %v", idx, err)
			continue
		}
		result.Removed++
	}

	log.Debugf("budget: compressed %d entries (%d tokens), total now %d/%d",
		result.Removed, result.TokensFreed, l.TotalTokens(), maxTokens)
	return result
}

// buildDigest assembles the summary lines for the first SummarizeLimit
// candidates, in ledger order. An ai entry with a tool invocation
// contributes its first action label; a human entry contributes a
// truncated state excerpt; other roles contribute nothing.
func (p Policy) buildDigest(entries []history.Entry, candidates []int) string {
	var lines []string
	limit := p.SummarizeLimit
	if limit > len(candidates) {
		limit = len(candidates)
	}

	for _, idx := range candidates[:limit] {
		msg := entries[idx].Message
		switch {
		case msg.Role == model.RoleAI && msg.HasToolCalls():
			if label := msg.FirstActionName(); label != "" {
				lines = append(lines, "• Executed: "+label)
			}
		case msg.Role == model.RoleHuman:
			content := msg.Text()
			if len([]rune(content)) > stateLineMaxRunes {
				content = util.TruncateRunesNoEllipsis(content, stateLineMaxRunes) + "..."
			}
			lines = append(lines, "• State: "+content)
		}
	}

	if len(candidates) > p.SummarizeLimit {
		lines = append(lines, fmt.Sprintf("• ... and %d more actions", len(candidates)-p.SummarizeLimit))
	}

	return "Previous actions summary:\n" + strings.Join(lines, "\n")
}
