// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the message data structures for agent history.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	// RoleSystem is a system instruction. Never evicted by budget policies.
	RoleSystem Role = "system"
	// RoleHuman is a state observation or user-authored message.
	RoleHuman Role = "human"
	// RoleAI is a model output, optionally carrying tool invocations.
	RoleAI Role = "ai"
	// RoleTool is an acknowledgment of a tool invocation, addressed by id.
	RoleTool Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleHuman, RoleAI, RoleTool:
		return true
	}
	return false
}

// =============================================================================
// CONTENT PARTS
// =============================================================================

// PartType discriminates content parts.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one unit of message content: either text or an image
// reference. Mixed text/image payloads are ordered lists of parts.
type ContentPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
}

// TextPart creates a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart creates an image content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartImage, URL: url}
}

// =============================================================================
// TOOL CALLS
// =============================================================================

// ToolCall is a structured tool invocation carried by an ai message.
// Args is kept opaque; only summarization digests peek inside it.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single conversation message: a role plus opaque content.
// Messages are never mutated in place once stored in a ledger.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts,omitempty"`

	// ToolCalls is set on ai messages that invoke tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID pairs a tool message with the invocation it acknowledges.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// NewSystemMessage creates a system message with text content.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []ContentPart{TextPart(text)}}
}

// NewHumanMessage creates a human message with text content.
func NewHumanMessage(text string) Message {
	return Message{Role: RoleHuman, Parts: []ContentPart{TextPart(text)}}
}

// NewHumanMessageWithImage creates a human message carrying text plus an
// image reference, the shape of a vision-enabled state observation.
func NewHumanMessageWithImage(text, imageURL string) Message {
	return Message{Role: RoleHuman, Parts: []ContentPart{TextPart(text), ImagePart(imageURL)}}
}

// NewAIMessage creates an ai message with text content and no tool calls.
func NewAIMessage(text string) Message {
	return Message{Role: RoleAI, Parts: []ContentPart{TextPart(text)}}
}

// NewAIToolCallMessage creates an empty-content ai message carrying the
// given tool invocations.
func NewAIToolCallMessage(calls ...ToolCall) Message {
	return Message{Role: RoleAI, ToolCalls: calls}
}

// NewToolMessage creates a tool acknowledgment message.
func NewToolMessage(content, toolCallID string) Message {
	m := Message{Role: RoleTool, ToolCallID: toolCallID}
	if content != "" {
		m.Parts = []ContentPart{TextPart(content)}
	}
	return m
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Text returns the concatenated text parts of the message.
func (m *Message) Text() string {
	if len(m.Parts) == 1 && m.Parts[0].Type == PartText {
		return m.Parts[0].Text
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// HasToolCalls reports whether the message carries tool invocations.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ImageCount returns the number of image parts.
func (m *Message) ImageCount() int {
	n := 0
	for _, p := range m.Parts {
		if p.Type == PartImage {
			n++
		}
	}
	return n
}

// FirstActionName extracts the label of the first structured action from
// the first tool call, for summarization digests. The agent decision
// format encodes actions as a list of single-key objects under "action":
//
//	{"action": [{"click_element": {"index": 5}}, ...], ...}
//
// The label is the key of the first action object. Returns "" when the
// message carries no tool calls or the arguments do not match that shape.
func (m *Message) FirstActionName() string {
	if len(m.ToolCalls) == 0 {
		return ""
	}
	var args struct {
		Action []json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal(m.ToolCalls[0].Args, &args); err != nil || len(args.Action) == 0 {
		return ""
	}
	return firstObjectKey(args.Action[0])
}

// firstObjectKey returns the first key of a JSON object, preserving the
// order in the encoded form. A map round-trip would randomize key order,
// so the object is walked with a token decoder instead.
func firstObjectKey(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return ""
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ""
	}
	tok, err = dec.Token()
	if err != nil {
		return ""
	}
	key, _ := tok.(string)
	return key
}
