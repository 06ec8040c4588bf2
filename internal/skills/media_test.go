package skills

import (
	"context"
	"testing"
)

func TestMediaLifecycle(t *testing.T) {
	t.Parallel()

	m := NewMedia()

	if reply := m.Pause(); reply != "Nothing is playing." {
		t.Errorf("Pause on idle = %q", reply)
	}

	if err := m.Play(context.Background(), "some jazz"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if current, playing := m.Current(); !playing || current != "some jazz" {
		t.Errorf("Current() = %q, %v", current, playing)
	}

	if reply := m.Pause(); reply != "Paused." {
		t.Errorf("Pause = %q", reply)
	}
	if reply := m.Resume(); reply != "Resuming some jazz." {
		t.Errorf("Resume = %q", reply)
	}
	if reply := m.Skip(); reply != "Skipping." {
		t.Errorf("Skip = %q", reply)
	}
}

func TestMediaStartHookFailure(t *testing.T) {
	t.Parallel()

	m := NewMedia(WithStartHook(func(ctx context.Context, query string) error {
		return context.DeadlineExceeded
	}))

	if err := m.Play(context.Background(), "anything"); err == nil {
		t.Fatal("expected hook error to propagate")
	}
	if _, playing := m.Current(); playing {
		t.Error("failed start must not mark the player as playing")
	}
}
