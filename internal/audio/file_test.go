package audio

import (
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

func requireFFmpegToolchain(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found on PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found on PATH")
	}
}

func generateShortTone(t *testing.T, seconds int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	cmd := exec.Command("ffmpeg", "-v", "error", "-f", "lavfi",
		"-i", "sine=frequency=440:duration="+strconv.Itoa(seconds),
		"-ar", "8000", "-ac", "1", path)
	if err := cmd.Run(); err != nil {
		t.Skipf("could not generate fixture with ffmpeg: %v", err)
	}
	return path
}

func TestFileFiresEndCallbackOnNaturalExhaustion(t *testing.T) {
	requireFFmpegToolchain(t)
	path := generateShortTone(t, 1)

	ctx := context.Background()
	f, err := OpenFile(ctx, path, 256)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	var mu sync.Mutex
	fired := false
	done := make(chan struct{})
	f.SetEndCallback(func() {
		mu.Lock()
		fired = true
		mu.Unlock()
		close(done)
	})

	if err := f.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for end-of-track callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if !fired {
		t.Fatal("expected end-of-track callback to fire on natural exhaustion")
	}
}

func TestFilePauseDoesNotFireEndCallback(t *testing.T) {
	requireFFmpegToolchain(t)
	path := generateShortTone(t, 2)

	ctx := context.Background()
	f, err := OpenFile(ctx, path, 256)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	var mu sync.Mutex
	fired := false
	f.SetEndCallback(func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	if err := f.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	f.Pause()
	// Give any wrongly-firing callback time to run.
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Fatal("Pause must not fire the end-of-track callback")
	}
}
