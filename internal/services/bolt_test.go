package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MegaGrindStone/ollama-web-ui/internal/models"
	"github.com/MegaGrindStone/ollama-web-ui/internal/services"
)

func newTestBoltDB(t *testing.T) services.BoltDB {
	t.Helper()

	db, err := services.NewBoltDB(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewBoltDB() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestBoltDBMessages(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	msgs, err := db.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("Messages() = %v, want empty", msgs)
	}

	want := []models.Message{
		{ID: "1", Role: models.RoleUser, Content: "Hello"},
		{ID: "2", Role: models.RoleAssistant, Content: "Hi", Model: "llama3", TotalDuration: 2 * time.Second},
		{ID: "3", Role: models.RoleUser, Content: "Bye"},
	}
	for _, msg := range want {
		if err := db.AddMessage(ctx, msg); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}

	got, err := db.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Messages() returned %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Content != want[i].Content || got[i].Role != want[i].Role {
			t.Errorf("Messages()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if got[1].TotalDuration != 2*time.Second {
		t.Errorf("Messages()[1].TotalDuration = %v, want %v", got[1].TotalDuration, 2*time.Second)
	}

	if err := db.ClearMessages(ctx); err != nil {
		t.Fatalf("ClearMessages() error = %v", err)
	}
	got, err = db.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Messages() after clear = %v, want empty", got)
	}

	if err := db.AddMessage(ctx, want[0]); err != nil {
		t.Fatalf("AddMessage() after clear error = %v", err)
	}
}

func TestBoltDBOrderBeyondOneByte(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		if err := db.AddMessage(ctx, models.Message{ID: string(rune('a' + i%26)), Content: time.Duration(i).String()}); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}

	got, err := db.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	for i, msg := range got {
		if msg.Content != time.Duration(i).String() {
			t.Fatalf("Messages()[%d].Content = %q, want %q", i, msg.Content, time.Duration(i).String())
		}
	}
}

func TestBoltDBSettings(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	v, err := db.Setting(ctx, "model")
	if err != nil {
		t.Fatalf("Setting() error = %v", err)
	}
	if v != "" {
		t.Errorf("Setting() of unset key = %q, want empty", v)
	}

	if err := db.SetSetting(ctx, "model", "llama3"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	if err := db.SetSetting(ctx, "model", "mistral"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}

	v, err = db.Setting(ctx, "model")
	if err != nil {
		t.Fatalf("Setting() error = %v", err)
	}
	if v != "mistral" {
		t.Errorf("Setting() = %q, want %q", v, "mistral")
	}
}

func TestBoltDBReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	db, err := services.NewBoltDB(path)
	if err != nil {
		t.Fatalf("NewBoltDB() error = %v", err)
	}
	if err := db.AddMessage(ctx, models.Message{ID: "1", Content: "kept"}); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db, err = services.NewBoltDB(path)
	if err != nil {
		t.Fatalf("NewBoltDB() reopen error = %v", err)
	}
	defer db.Close()

	msgs, err := db.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "kept" {
		t.Errorf("Messages() after reopen = %+v, want the stored message", msgs)
	}
}
