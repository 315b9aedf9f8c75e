package store

import (
	"encoding/base64"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/quarrel-labs/internal/domain"
)

func TestShareRoundTrip(t *testing.T) {
	t.Parallel()

	battle := domain.Battle{
		ID:       "ignored",
		Scenario: "同事甩锅",
		Messages: []domain.Message{
			{ID: "m1", Speaker: domain.UserSpeaker, Body: "【情景】: 同事甩锅\n【对方】: 你又不是老板", CreatedAt: time.UnixMilli(1_700_000_000_123)},
			{
				ID:         "m2",
				Speaker:    "VISION",
				Body:       "看图说话",
				CreatedAt:  time.UnixMilli(1_700_000_000_456),
				Attachment: &domain.Attachment{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
			},
		},
	}

	token, err := EncodeShare(battle)
	if err != nil {
		t.Fatalf("EncodeShare failed: %v", err)
	}
	if !strings.HasPrefix(token, SharePrefix) {
		t.Fatalf("token %q lacks prefix", token)
	}

	got, ok := DecodeShare(token)
	if !ok {
		t.Fatal("DecodeShare rejected a valid token")
	}
	if got.ID != "" {
		t.Errorf("decoded battle should have no id, got %q", got.ID)
	}
	if got.Scenario != battle.Scenario {
		t.Errorf("Scenario = %q, want %q", got.Scenario, battle.Scenario)
	}
	if !reflect.DeepEqual(got.Messages, battle.Messages) {
		t.Errorf("Messages = %+v, want %+v", got.Messages, battle.Messages)
	}

	if _, ok := DecodeShare("#" + token); !ok {
		t.Error("expected fragment form to decode")
	}
}

func TestEncodeShareRejectsEmptyBattle(t *testing.T) {
	t.Parallel()

	if _, err := EncodeShare(domain.Battle{Scenario: "x"}); !errors.Is(err, domain.ErrEmptyBattle) {
		t.Fatalf("expected ErrEmptyBattle, got %v", err)
	}
}

func TestDecodeShareIgnoresMalformedTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no prefix", "abc"},
		{"bad base64", SharePrefix + "!!!"},
		{"bad json", SharePrefix + base64.StdEncoding.EncodeToString([]byte("{"))},
		{"no messages", SharePrefix + base64.StdEncoding.EncodeToString([]byte(`{"scenarioText":"x","messages":[]}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if b, ok := DecodeShare(tt.token); ok || b != nil {
				t.Fatalf("DecodeShare(%q) = %v, %v; want nil, false", tt.token, b, ok)
			}
		})
	}
}
