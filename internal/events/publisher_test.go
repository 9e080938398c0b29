package events

import (
	"context"
	"testing"

	"github.com/b00ls0ck3t/Polyglot/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"nil brokers", &Config{Enabled: true, Brokers: nil}},
		{"nil config", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerUnits != nil {
				t.Error("expected nil units writer when disabled")
			}
			if p.writerTurns != nil {
				t.Error("expected nil turns writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:    false,
		Brokers:    []string{"localhost:9092"},
		TopicUnits: "speech.units",
		TopicTurns: "speech.turns.translated",
		Principal:  "svc-polyglot",
	}

	p := New(cfg)

	if p.principal != "svc-polyglot" {
		t.Errorf("expected principal 'svc-polyglot', got %s", p.principal)
	}
	if p.topicUnits != "speech.units" {
		t.Errorf("expected units topic 'speech.units', got %s", p.topicUnits)
	}
	if p.topicTurns != "speech.turns.translated" {
		t.Errorf("expected turns topic 'speech.turns.translated', got %s", p.topicTurns)
	}
}

func TestPublisher_PublishUnit_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicUnits: "speech.units"})

	unit := models.SpeechUnit{SessionID: "s-1", Seq: 0, Text: "Dobrý den"}
	if err := p.PublishUnit(context.Background(), unit); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishTurn_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicTurns: "speech.turns.translated"})

	turn := models.TranslatedTurn{
		Turn:        models.BufferedTurn{ID: "t-1", SessionID: "s-1", Text: "Dobrý den"},
		Translation: "Good day",
	}
	if err := p.PublishTurn(context.Background(), turn); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilWriters(t *testing.T) {
	p := &Publisher{}
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
