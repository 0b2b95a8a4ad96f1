// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history implements the token-accounted message ledger.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jeranaias/agentledger/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNegativeTokens signals a caller-supplied negative token cost.
	ErrNegativeTokens = errors.New("history: negative token cost")

	// ErrInvalidPosition signals an out-of-range insertion or removal index.
	ErrInvalidPosition = errors.New("history: position out of range")

	// ErrTokenMismatch signals persisted state whose recorded token total
	// does not equal the sum over its entries.
	ErrTokenMismatch = errors.New("history: current_tokens does not match entry sum")
)

// =============================================================================
// ENTRY TYPES
// =============================================================================

// Metadata is the accounting data attached to every stored message.
// It is immutable once attached; it leaves the ledger only together
// with its message.
type Metadata struct {
	// Tokens is the caller-estimated cost of the message. Never negative.
	Tokens int `json:"tokens"`

	// MessageType is an optional label, e.g. "init" for seed messages.
	MessageType string `json:"message_type,omitempty"`
}

// Entry pairs a message with its metadata. The unit of storage,
// insertion, and removal.
type Entry struct {
	Message  model.Message `json:"message"`
	Metadata Metadata      `json:"metadata"`
}

// =============================================================================
// LEDGER
// =============================================================================

// Token estimates used when wrapping an agent decision into a turn.
// The decision arrives pre-structured; these fixed costs stand in for a
// real count of the serialized tool call and its empty acknowledgment.
const (
	agentTurnTokens = 100
	toolAckTokens   = 10
)

// agentOutputTool is the tool name under which agent decisions are wrapped.
const agentOutputTool = "AgentOutput"

// Ledger is the ordered, token-accounted message store.
//
// Invariant: currentTokens equals the sum of all entry token costs after
// every mutation. Every mutating method updates both together.
type Ledger struct {
	entries       []Entry
	currentTokens int

	// nextToolID pairs ai tool invocations with their acknowledgments.
	// Owned by the ledger rather than being ambient global state.
	nextToolID int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{nextToolID: 1}
}

// =============================================================================
// ADD OPERATIONS
// =============================================================================

// Add appends an entry to the end of the ledger.
func (l *Ledger) Add(msg model.Message, meta Metadata) error {
	return l.AddAt(msg, meta, l.Len())
}

// AddAt inserts an entry at the given position, shifting later entries.
// Position l.Len() appends. Inserting before existing entries is used to
// re-inject a system message after eviction.
func (l *Ledger) AddAt(msg model.Message, meta Metadata, position int) error {
	if meta.Tokens < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeTokens, meta.Tokens)
	}
	if position < 0 || position > len(l.entries) {
		return fmt.Errorf("%w: %d (len %d)", ErrInvalidPosition, position, len(l.entries))
	}

	entry := Entry{Message: msg, Metadata: meta}
	if position == len(l.entries) {
		l.entries = append(l.entries, entry)
	} else {
		l.entries = append(l.entries, Entry{})
		copy(l.entries[position+1:], l.entries[position:])
		l.entries[position] = entry
	}
	l.currentTokens += meta.Tokens
	return nil
}

// AddAgentTurn wraps a structured agent decision into a paired turn:
// an ai message carrying the decision as a single tool invocation,
// immediately followed by an empty tool acknowledgment with the same id.
// The decision is marshaled as-is and never validated here.
func (l *Ledger) AddAgentTurn(output any) error {
	args, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("history: marshal agent output: %w", err)
	}

	id := l.IssueToolID()

	call := model.ToolCall{ID: id, Name: agentOutputTool, Args: args}
	if err := l.Add(model.NewAIToolCallMessage(call), Metadata{Tokens: agentTurnTokens}); err != nil {
		return err
	}
	return l.Add(model.NewToolMessage("", id), Metadata{Tokens: toolAckTokens})
}

// IssueToolID returns a fresh tool invocation id. Callers attaching
// standalone tool messages use this so ids stay unique across the ledger.
func (l *Ledger) IssueToolID() string {
	id := strconv.Itoa(l.nextToolID)
	l.nextToolID++
	return id
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Messages returns the ordered message sequence with metadata stripped,
// ready to be sent as the next model prompt.
func (l *Ledger) Messages() []model.Message {
	msgs := make([]model.Message, len(l.entries))
	for i, e := range l.entries {
		msgs[i] = e.Message
	}
	return msgs
}

// Entries returns a copy of the stored entries in order.
func (l *Ledger) Entries() []Entry {
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// At returns the entry at index i.
func (l *Ledger) At(i int) (Entry, error) {
	if i < 0 || i >= len(l.entries) {
		return Entry{}, fmt.Errorf("%w: %d (len %d)", ErrInvalidPosition, i, len(l.entries))
	}
	return l.entries[i], nil
}

// Len returns the number of stored entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// TotalTokens returns the cached running token total. O(1).
func (l *Ledger) TotalTokens() int {
	return l.currentTokens
}

// =============================================================================
// REMOVE OPERATIONS
// =============================================================================

// RemoveAt removes the entry at index i and decrements the token total
// by its cost.
func (l *Ledger) RemoveAt(i int) error {
	if i < 0 || i >= len(l.entries) {
		return fmt.Errorf("%w: %d (len %d)", ErrInvalidPosition, i, len(l.entries))
	}
	l.currentTokens -= l.entries[i].Metadata.Tokens
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return nil
}

// RemoveOldestNonSystem removes the first entry whose role is not
// system. Reports whether an entry was removed; a ledger holding only
// system messages is left untouched.
func (l *Ledger) RemoveOldestNonSystem() bool {
	for i, e := range l.entries {
		if e.Message.Role != model.RoleSystem {
			l.currentTokens -= e.Metadata.Tokens
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveTrailingState drops the last entry when the ledger holds more
// than two entries and the last one is a human message. Used to retry a
// step without double-counting a just-added observation. Reports whether
// an entry was removed.
func (l *Ledger) RemoveTrailingState() bool {
	if len(l.entries) <= 2 {
		return false
	}
	last := l.entries[len(l.entries)-1]
	if last.Message.Role != model.RoleHuman {
		return false
	}
	l.currentTokens -= last.Metadata.Tokens
	l.entries = l.entries[:len(l.entries)-1]
	return true
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// ledgerState is the persisted-state layout. The running total is stored
// alongside the entries and re-validated on load.
type ledgerState struct {
	Messages      []Entry `json:"messages"`
	CurrentTokens int     `json:"current_tokens"`
}

// MarshalJSON serializes the ledger as {"messages": [...], "current_tokens": N}.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerState{
		Messages:      l.entries,
		CurrentTokens: l.currentTokens,
	})
}

// UnmarshalJSON restores a ledger from its persisted state, rejecting
// input whose recorded total disagrees with the entry sum or whose
// entries carry negative token costs.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var state ledgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("history: decode ledger: %w", err)
	}

	sum := 0
	for i, e := range state.Messages {
		if e.Metadata.Tokens < 0 {
			return fmt.Errorf("%w: entry %d has %d", ErrNegativeTokens, i, e.Metadata.Tokens)
		}
		sum += e.Metadata.Tokens
	}
	if sum != state.CurrentTokens {
		return fmt.Errorf("%w: recorded %d, sum %d", ErrTokenMismatch, state.CurrentTokens, sum)
	}

	l.entries = state.Messages
	l.currentTokens = state.CurrentTokens
	l.nextToolID = nextToolIDAfter(state.Messages)
	return nil
}

// nextToolIDAfter recovers the tool-id counter from restored entries so
// that new agent turns never reuse an acknowledged invocation id.
func nextToolIDAfter(entries []Entry) int {
	next := 1
	bump := func(id string) {
		if n, err := strconv.Atoi(id); err == nil && n >= next {
			next = n + 1
		}
	}
	for _, e := range entries {
		for _, call := range e.Message.ToolCalls {
			bump(call.ID)
		}
		if e.Message.ToolCallID != "" {
			bump(e.Message.ToolCallID)
		}
	}
	return next
}
