// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"errors"
	"testing"

	"github.com/jeranaias/agentledger/internal/model"
)

// checkInvariant verifies the cached total equals the exact entry sum.
func checkInvariant(t *testing.T, l *Ledger) {
	t.Helper()
	sum := 0
	for _, e := range l.Entries() {
		sum += e.Metadata.Tokens
	}
	if l.TotalTokens() != sum {
		t.Fatalf("Token invariant broken: cached %d, sum %d", l.TotalTokens(), sum)
	}
}

// =============================================================================
// ADD TESTS
// =============================================================================

func TestLedger_Add(t *testing.T) {
	l := New()

	if err := l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := l.Add(model.NewHumanMessage("state"), Metadata{Tokens: 20}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if l.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", l.Len())
	}
	if l.TotalTokens() != 25 {
		t.Errorf("Expected 25 tokens, got %d", l.TotalTokens())
	}
	checkInvariant(t, l)
}

func TestLedger_AddAt_InsertsBeforeExisting(t *testing.T) {
	l := New()
	l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5})
	l.Add(model.NewHumanMessage("state"), Metadata{Tokens: 20})

	// Re-inject a system message after the main system prompt.
	if err := l.AddAt(model.NewSystemMessage("summary"), Metadata{Tokens: 8}, 1); err != nil {
		t.Fatalf("AddAt failed: %v", err)
	}

	msgs := l.Messages()
	if msgs[1].Role != model.RoleSystem || msgs[1].Text() != "summary" {
		t.Errorf("Expected inserted message at position 1, got %+v", msgs[1])
	}
	if msgs[2].Role != model.RoleHuman {
		t.Errorf("Expected original entry shifted to position 2, got role %q", msgs[2].Role)
	}
	if l.TotalTokens() != 33 {
		t.Errorf("Expected 33 tokens, got %d", l.TotalTokens())
	}
	checkInvariant(t, l)
}

func TestLedger_Add_NegativeTokens(t *testing.T) {
	l := New()
	err := l.Add(model.NewHumanMessage("x"), Metadata{Tokens: -1})
	if !errors.Is(err, ErrNegativeTokens) {
		t.Fatalf("Expected ErrNegativeTokens, got %v", err)
	}
	if l.Len() != 0 || l.TotalTokens() != 0 {
		t.Error("Rejected add must not mutate the ledger")
	}
}

func TestLedger_AddAt_OutOfRange(t *testing.T) {
	l := New()
	l.Add(model.NewHumanMessage("x"), Metadata{Tokens: 1})

	for _, pos := range []int{-1, 2, 100} {
		err := l.AddAt(model.NewHumanMessage("y"), Metadata{Tokens: 1}, pos)
		if !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("Expected ErrInvalidPosition for position %d, got %v", pos, err)
		}
	}
	checkInvariant(t, l)
}

// =============================================================================
// AGENT TURN TESTS
// =============================================================================

func TestLedger_AddAgentTurn(t *testing.T) {
	l := New()
	l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5})

	decision := map[string]any{
		"current_state": map[string]string{"next_goal": "open settings"},
		"action":        []map[string]any{{"click_element": map[string]int{"index": 3}}},
	}
	before := l.TotalTokens()
	if err := l.AddAgentTurn(decision); err != nil {
		t.Fatalf("AddAgentTurn failed: %v", err)
	}

	// Exactly two entries: ai with tool call (100), then empty tool ack (10).
	if l.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", l.Len())
	}
	entries := l.Entries()
	ai, ack := entries[1], entries[2]

	if ai.Message.Role != model.RoleAI || !ai.Message.HasToolCalls() {
		t.Errorf("Expected ai message with tool call, got %+v", ai.Message)
	}
	if ai.Metadata.Tokens != 100 {
		t.Errorf("Expected 100 tokens for ai entry, got %d", ai.Metadata.Tokens)
	}
	if ack.Message.Role != model.RoleTool {
		t.Errorf("Expected tool acknowledgment, got role %q", ack.Message.Role)
	}
	if ack.Metadata.Tokens != 10 {
		t.Errorf("Expected 10 tokens for acknowledgment, got %d", ack.Metadata.Tokens)
	}
	if got := l.TotalTokens() - before; got != 110 {
		t.Errorf("Expected turn to add exactly 110 tokens, added %d", got)
	}

	// The acknowledgment must address the invocation it pairs with.
	if ack.Message.ToolCallID != ai.Message.ToolCalls[0].ID {
		t.Errorf("Acknowledgment id %q does not match invocation id %q",
			ack.Message.ToolCallID, ai.Message.ToolCalls[0].ID)
	}
	checkInvariant(t, l)
}

func TestLedger_AddAgentTurn_IDsIncrement(t *testing.T) {
	l := New()
	l.AddAgentTurn(map[string]any{"action": []map[string]any{{"wait": map[string]any{}}}})
	l.AddAgentTurn(map[string]any{"action": []map[string]any{{"done": map[string]any{}}}})

	entries := l.Entries()
	first := entries[0].Message.ToolCalls[0].ID
	second := entries[2].Message.ToolCalls[0].ID
	if first == second {
		t.Errorf("Expected distinct invocation ids, both %q", first)
	}
}

// =============================================================================
// READ TESTS
// =============================================================================

func TestLedger_Messages_StripsMetadata(t *testing.T) {
	l := New()
	l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5, MessageType: "init"})
	l.Add(model.NewHumanMessage("state"), Metadata{Tokens: 20})

	msgs := l.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleSystem || msgs[1].Role != model.RoleHuman {
		t.Errorf("Message order not preserved: %q, %q", msgs[0].Role, msgs[1].Role)
	}

	// Snapshot is a pure read.
	if l.Len() != 2 || l.TotalTokens() != 25 {
		t.Error("Messages() must not mutate the ledger")
	}
}

// =============================================================================
// REMOVE TESTS
// =============================================================================

func TestLedger_RemoveOldestNonSystem(t *testing.T) {
	l := New()
	l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5})
	l.Add(model.NewHumanMessage("first state"), Metadata{Tokens: 20})
	l.Add(model.NewHumanMessage("second state"), Metadata{Tokens: 30})

	if !l.RemoveOldestNonSystem() {
		t.Fatal("Expected a removal")
	}
	if l.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", l.Len())
	}
	msgs := l.Messages()
	if msgs[0].Role != model.RoleSystem {
		t.Error("System message must never be removed")
	}
	if msgs[1].Text() != "second state" {
		t.Errorf("Expected oldest non-system entry removed, kept %q", msgs[1].Text())
	}
	if l.TotalTokens() != 35 {
		t.Errorf("Expected 35 tokens, got %d", l.TotalTokens())
	}
	checkInvariant(t, l)
}

func TestLedger_RemoveOldestNonSystem_OnlySystem(t *testing.T) {
	l := New()
	l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5})
	l.Add(model.NewSystemMessage("more rules"), Metadata{Tokens: 7})

	if l.RemoveOldestNonSystem() {
		t.Error("Expected no-op when only system entries remain")
	}
	if l.Len() != 2 || l.TotalTokens() != 12 {
		t.Error("No-op removal must not mutate the ledger")
	}
}

func TestLedger_RemoveTrailingState(t *testing.T) {
	l := New()
	l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5})
	l.Add(model.NewAIMessage("plan"), Metadata{Tokens: 15})
	l.Add(model.NewHumanMessage("observation"), Metadata{Tokens: 40})

	if !l.RemoveTrailingState() {
		t.Fatal("Expected trailing state to be removed")
	}
	if l.Len() != 2 || l.TotalTokens() != 20 {
		t.Errorf("Expected 2 entries / 20 tokens, got %d / %d", l.Len(), l.TotalTokens())
	}
	checkInvariant(t, l)
}

func TestLedger_RemoveTrailingState_TwoEntries(t *testing.T) {
	// Count not > 2: no-op even though the last entry is human.
	l := New()
	l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5})
	l.Add(model.NewHumanMessage("observation"), Metadata{Tokens: 40})

	if l.RemoveTrailingState() {
		t.Error("Expected no-op with exactly 2 entries")
	}
	if l.Len() != 2 || l.TotalTokens() != 45 {
		t.Error("No-op must not mutate the ledger")
	}
}

func TestLedger_RemoveTrailingState_NonHumanLast(t *testing.T) {
	l := New()
	l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5})
	l.Add(model.NewHumanMessage("observation"), Metadata{Tokens: 40})
	l.Add(model.NewAIMessage("plan"), Metadata{Tokens: 15})

	if l.RemoveTrailingState() {
		t.Error("Expected no-op when last entry is not human")
	}
}

func TestLedger_RemoveAt(t *testing.T) {
	l := New()
	l.Add(model.NewHumanMessage("a"), Metadata{Tokens: 1})
	l.Add(model.NewHumanMessage("b"), Metadata{Tokens: 2})
	l.Add(model.NewHumanMessage("c"), Metadata{Tokens: 4})

	if err := l.RemoveAt(1); err != nil {
		t.Fatalf("RemoveAt failed: %v", err)
	}
	if l.TotalTokens() != 5 {
		t.Errorf("Expected 5 tokens, got %d", l.TotalTokens())
	}
	if err := l.RemoveAt(5); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("Expected ErrInvalidPosition, got %v", err)
	}
	checkInvariant(t, l)
}

// =============================================================================
// INVARIANT TESTS
// =============================================================================

func TestLedger_TokenInvariantAcrossMixedOperations(t *testing.T) {
	l := New()
	l.Add(model.NewSystemMessage("rules"), Metadata{Tokens: 5})
	for i := 0; i < 6; i++ {
		l.Add(model.NewHumanMessage("state"), Metadata{Tokens: 20})
		l.AddAgentTurn(map[string]any{"action": []map[string]any{{"scroll_down": map[string]any{}}}})
		checkInvariant(t, l)
	}

	l.RemoveOldestNonSystem()
	checkInvariant(t, l)
	l.RemoveTrailingState()
	checkInvariant(t, l)
	l.AddAt(model.NewSystemMessage("summary"), Metadata{Tokens: 12}, 1)
	checkInvariant(t, l)
}
