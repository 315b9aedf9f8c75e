package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/quarrel-labs/internal/domain"
)

// SharePrefix marks a share token.
const SharePrefix = "share:"

type sharePayload struct {
	Scenario string           `json:"scenarioText"`
	Messages []domain.Message `json:"messages"`
}

// EncodeShare renders a battle as a portable share token.
func EncodeShare(battle domain.Battle) (string, error) {
	if len(battle.Messages) == 0 {
		return "", domain.ErrEmptyBattle
	}
	data, err := json.Marshal(sharePayload{Scenario: battle.Scenario, Messages: battle.Messages})
	if err != nil {
		return "", fmt.Errorf("encode share payload: %w", err)
	}
	return SharePrefix + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeShare parses a share token. A leading "#" (URL fragment form) is
// accepted. Malformed tokens are logged and reported as false; the returned
// battle has no id so loading it starts a new history entry.
func DecodeShare(token string) (*domain.Battle, bool) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "#")
	encoded, ok := strings.CutPrefix(token, SharePrefix)
	if !ok {
		slog.Debug("ignoring share token without prefix")
		return nil, false
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		slog.Warn("failed to decode share token", "error", err)
		return nil, false
	}
	var payload sharePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("failed to parse share payload", "error", err)
		return nil, false
	}
	if len(payload.Messages) == 0 {
		slog.Warn("share payload has no messages")
		return nil, false
	}
	return &domain.Battle{Scenario: payload.Scenario, Messages: payload.Messages}, true
}
