package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RollingFile wraps an Mp3Encoder and writes its output to a file that
// rotates on a wall-clock interval (spec.md §4.10). File names are
// "<base>_YYYYMMDD-HHMMSS.mp3".
type RollingFile struct {
	encoder      *Mp3Encoder
	basePath     string
	rollInterval time.Duration

	mu        sync.Mutex
	input     Producer
	subID     SubscriptionID
	file      *os.File
	startedAt time.Time
}

// NewRollingFile creates a rolling sink. basePath may or may not carry an
// extension; the rotated files always get a .mp3 extension.
func NewRollingFile(sampleRate, quality, bitrateKbps int, basePath string, rollInterval time.Duration) *RollingFile {
	rf := &RollingFile{
		encoder:      NewMp3Encoder(sampleRate, quality, bitrateKbps),
		basePath:     basePath,
		rollInterval: rollInterval,
	}
	rf.encoder.AddSubscriber(rf.write)
	return rf
}

// SetInput rolls the current file (if open) and attaches the new source.
func (rf *RollingFile) SetInput(src Producer) error {
	rf.mu.Lock()
	prev := rf.input
	rf.mu.Unlock()
	if prev != nil {
		if err := rf.encoder.ClearInput(); err != nil {
			return err
		}
		rf.rollLocked()
	}
	if err := rf.encoder.SetInput(src); err != nil {
		return err
	}
	rf.mu.Lock()
	rf.input = src
	rf.mu.Unlock()
	return nil
}

// Input returns the currently attached source, or nil.
func (rf *RollingFile) Input() Producer {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.input
}

// Close detaches the encoder and closes any open file.
func (rf *RollingFile) Close() error {
	err := rf.encoder.ClearInput()
	rf.mu.Lock()
	rf.input = nil
	rf.mu.Unlock()
	rf.rollLocked()
	return err
}

func (rf *RollingFile) rollLocked() {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file != nil {
		_ = rf.file.Close()
		rf.file = nil
	}
}

func (rf *RollingFile) write(_ EncodedProducer, data []byte) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	now := time.Now()
	if rf.file == nil {
		if err := rf.openLocked(now); err != nil {
			return
		}
	} else if now.Sub(rf.startedAt) > rf.rollInterval {
		_ = rf.file.Close()
		if err := rf.openLocked(now); err != nil {
			rf.file = nil
			return
		}
	}
	_, _ = rf.file.Write(data)
}

func (rf *RollingFile) openLocked(now time.Time) error {
	dir := filepath.Dir(rf.basePath)
	base := filepath.Base(rf.basePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	filename := fmt.Sprintf("%s_%s.mp3", name, now.Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	rf.file = f
	rf.startedAt = now
	return nil
}
