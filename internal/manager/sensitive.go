// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package manager

import (
	"sort"
	"strings"

	"github.com/jeranaias/agentledger/internal/model"
)

// =============================================================================
// SENSITIVE DATA FILTERING
// =============================================================================

// filterSensitive replaces configured secret values with placeholder
// tags before a message is stored, so credentials never sit in history
// (or in snapshots of it). The model is told to write
// <secret>key</secret> when it needs the value; substitution back
// happens downstream, outside this package.
func (m *Manager) filterSensitive(msg model.Message) model.Message {
	if len(m.settings.SensitiveData) == 0 {
		return msg
	}

	parts := make([]model.ContentPart, len(msg.Parts))
	copy(parts, msg.Parts)
	for i := range parts {
		if parts[i].Type != model.PartText {
			continue
		}
		parts[i].Text = m.replaceSecrets(parts[i].Text)
	}
	msg.Parts = parts
	return msg
}

// sensitiveDataNotice lists the available placeholder keys so the model
// knows how to reference secrets it never sees. Keys are sorted for a
// stable message.
func (m *Manager) sensitiveDataNotice() string {
	keys := make([]string, 0, len(m.settings.SensitiveData))
	for key := range m.settings.SensitiveData {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return "Here are placeholders for sensitive data: " + strings.Join(keys, ", ") +
		"\nTo use them, write <secret>the placeholder name</secret>"
}

// replaceSecrets swaps each secret value for its placeholder tag.
func (m *Manager) replaceSecrets(text string) string {
	for key, value := range m.settings.SensitiveData {
		if value == "" {
			continue
		}
		text = strings.ReplaceAll(text, value, "<secret>"+key+"</secret>")
	}
	return text
}
