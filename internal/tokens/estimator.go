// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens estimates message token costs.
package tokens

import (
	"encoding/json"

	"github.com/jeranaias/agentledger/internal/model"
)

// =============================================================================
// ESTIMATOR INTERFACE
// =============================================================================

// Estimator computes the token cost recorded in an entry's metadata.
type Estimator interface {
	// EstimateMessage returns a non-negative token estimate for msg.
	EstimateMessage(msg *model.Message) int
}

// =============================================================================
// HEURISTIC ESTIMATOR
// =============================================================================

// Heuristic defaults.
const (
	// DefaultCharsPerToken is the character-to-token ratio for text.
	DefaultCharsPerToken = 3

	// DefaultImageTokens is the flat cost charged per image part.
	DefaultImageTokens = 800
)

// Heuristic estimates tokens as text length divided by a fixed
// character ratio, with a flat cost per image part. Tool-call arguments
// are serialized and counted as text.
type Heuristic struct {
	// CharsPerToken is the text ratio (default 3).
	CharsPerToken int

	// ImageTokens is the flat per-image cost (default 800).
	ImageTokens int
}

// NewHeuristic creates a heuristic estimator, applying defaults for
// zero or negative values.
func NewHeuristic(charsPerToken, imageTokens int) *Heuristic {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	if imageTokens <= 0 {
		imageTokens = DefaultImageTokens
	}
	return &Heuristic{CharsPerToken: charsPerToken, ImageTokens: imageTokens}
}

// EstimateMessage implements Estimator. A zero-value Heuristic behaves
// as if built with NewHeuristic(0, 0).
func (h *Heuristic) EstimateMessage(msg *model.Message) int {
	chars := h.CharsPerToken
	if chars <= 0 {
		chars = DefaultCharsPerToken
	}
	image := h.ImageTokens
	if image <= 0 {
		image = DefaultImageTokens
	}

	total := 0
	for _, part := range msg.Parts {
		switch part.Type {
		case model.PartImage:
			total += image
		case model.PartText:
			total += len(part.Text) / chars
		}
	}
	for _, call := range msg.ToolCalls {
		data, err := json.Marshal(call)
		if err != nil {
			continue
		}
		total += len(data) / chars
	}
	return total
}
