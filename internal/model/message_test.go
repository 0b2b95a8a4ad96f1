// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"
)

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestRole_Valid(t *testing.T) {
	valid := []Role{RoleSystem, RoleHuman, RoleAI, RoleTool}
	for _, r := range valid {
		if !r.Valid() {
			t.Errorf("Expected role %q to be valid", r)
		}
	}

	if Role("assistant").Valid() {
		t.Error("Expected unknown role to be invalid")
	}
}

// =============================================================================
// CONTENT TESTS
// =============================================================================

func TestMessage_Text(t *testing.T) {
	msg := NewHumanMessage("hello world")
	if msg.Text() != "hello world" {
		t.Errorf("Expected text %q, got %q", "hello world", msg.Text())
	}

	mixed := NewHumanMessageWithImage("page state", "data:image/png;base64,xyz")
	if mixed.Text() != "page state" {
		t.Errorf("Expected image parts to be skipped, got %q", mixed.Text())
	}
	if mixed.ImageCount() != 1 {
		t.Errorf("Expected 1 image part, got %d", mixed.ImageCount())
	}
}

func TestMessage_HasToolCalls(t *testing.T) {
	plain := NewAIMessage("thinking out loud")
	if plain.HasToolCalls() {
		t.Error("Expected plain ai message to have no tool calls")
	}

	call := ToolCall{ID: "1", Name: "AgentOutput", Args: json.RawMessage(`{}`)}
	withCall := NewAIToolCallMessage(call)
	if !withCall.HasToolCalls() {
		t.Error("Expected tool call message to report tool calls")
	}
}

// =============================================================================
// ACTION LABEL EXTRACTION
// =============================================================================

func TestMessage_FirstActionName(t *testing.T) {
	args := json.RawMessage(`{"current_state":{"next_goal":"buy iphone"},"action":[{"click_element":{"index":127}},{"scroll_down":{}}]}`)
	msg := NewAIToolCallMessage(ToolCall{ID: "1", Name: "AgentOutput", Args: args})

	if got := msg.FirstActionName(); got != "click_element" {
		t.Errorf("Expected first action %q, got %q", "click_element", got)
	}
}

func TestMessage_FirstActionName_NoToolCalls(t *testing.T) {
	msg := NewAIMessage("no actions here")
	if got := msg.FirstActionName(); got != "" {
		t.Errorf("Expected empty label, got %q", got)
	}
}

func TestMessage_FirstActionName_MalformedArgs(t *testing.T) {
	cases := []json.RawMessage{
		nil,
		json.RawMessage(`{}`),
		json.RawMessage(`{"action":[]}`),
		json.RawMessage(`{"action":["not-an-object"]}`),
		json.RawMessage(`not json at all`),
	}

	for _, args := range cases {
		msg := NewAIToolCallMessage(ToolCall{ID: "1", Name: "AgentOutput", Args: args})
		if got := msg.FirstActionName(); got != "" {
			t.Errorf("Expected empty label for args %s, got %q", args, got)
		}
	}
}

// =============================================================================
// SERIALIZATION TESTS
// =============================================================================

func TestMessage_JSONRoundTrip(t *testing.T) {
	original := Message{
		Role: RoleAI,
		ToolCalls: []ToolCall{
			{ID: "7", Name: "AgentOutput", Args: json.RawMessage(`{"action":[{"done":{}}]}`)},
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var restored Message
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if restored.Role != RoleAI {
		t.Errorf("Expected role %q, got %q", RoleAI, restored.Role)
	}
	if len(restored.ToolCalls) != 1 || restored.ToolCalls[0].Name != "AgentOutput" {
		t.Errorf("Tool calls not preserved: %+v", restored.ToolCalls)
	}
	if restored.FirstActionName() != "done" {
		t.Errorf("Expected action label to survive round trip, got %q", restored.FirstActionName())
	}
}
