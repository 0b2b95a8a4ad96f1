// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"encoding/json"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/jeranaias/agentledger/internal/model"
)

// =============================================================================
// BPE ESTIMATOR
// =============================================================================

var (
	bpeOnce sync.Once
	bpeEnc  tokenizer.Codec
	bpeErr  error
)

// getEncoder returns the shared BPE encoder (o200k_base, falling back
// to cl100k_base when unavailable).
func getEncoder() (tokenizer.Codec, error) {
	bpeOnce.Do(func() {
		bpeEnc, bpeErr = tokenizer.Get(tokenizer.O200kBase)
		if bpeErr != nil {
			bpeEnc, bpeErr = tokenizer.Get(tokenizer.Cl100kBase)
		}
	})
	return bpeEnc, bpeErr
}

// BPE estimates tokens with a real tokenizer vocabulary. Image parts
// still carry a flat cost: vision token pricing is model-specific and
// outside what a text tokenizer can measure.
type BPE struct {
	// ImageTokens is the flat per-image cost (default 800).
	ImageTokens int

	enc tokenizer.Codec
}

// NewBPE creates a BPE estimator. It fails only when no tiktoken
// vocabulary can be loaded.
func NewBPE(imageTokens int) (*BPE, error) {
	enc, err := getEncoder()
	if err != nil {
		return nil, err
	}
	if imageTokens <= 0 {
		imageTokens = DefaultImageTokens
	}
	return &BPE{ImageTokens: imageTokens, enc: enc}, nil
}

// EstimateMessage implements Estimator.
func (b *BPE) EstimateMessage(msg *model.Message) int {
	total := 0
	for _, part := range msg.Parts {
		switch part.Type {
		case model.PartImage:
			total += b.ImageTokens
		case model.PartText:
			total += b.count(part.Text)
		}
	}
	for _, call := range msg.ToolCalls {
		data, err := json.Marshal(call)
		if err != nil {
			continue
		}
		total += b.count(string(data))
	}
	return total
}

// count returns the BPE token count for a text fragment.
func (b *BPE) count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := b.enc.Encode(text)
	if err != nil {
		// Degrade to the heuristic ratio rather than undercounting.
		return len(text) / DefaultCharsPerToken
	}
	return len(ids)
}
