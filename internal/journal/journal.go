// Package journal persists shell events as JSON lines in date-organised,
// size-rotated files.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/nearil_shell/internal/events"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("journal is closed")

// ErrBufferFull is returned by Write when the queue cannot take more records.
var ErrBufferFull = errors.New("journal buffer full")

// Options configure a Journal.
type Options struct {
	Dir        string
	SessionID  string
	BufferSize int
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Now overrides the clock used for date directories.
	Now func() time.Time
	// OnDrop is called for each record refused because the buffer is full.
	OnDrop func()
}

// Journal writes records asynchronously. Files live at
// <Dir>/<yyyy-mm-dd>/<SessionID>.jsonl and roll over at midnight UTC.
type Journal struct {
	opts    Options
	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
	closeOnce   sync.Once
}

// Open starts the writer goroutine.
func Open(opts Options) *Journal {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 20
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionID == "" {
		opts.SessionID = fmt.Sprintf("%d", time.Now().Unix())
	}
	j := &Journal{
		opts:    opts,
		writeCh: make(chan any, opts.BufferSize),
		done:    make(chan struct{}),
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j
}

// Write queues a record without blocking.
func (j *Journal) Write(record any) error {
	select {
	case <-j.done:
		return ErrClosed
	default:
	}
	select {
	case j.writeCh <- record:
		return nil
	default:
		if j.dropped.Add(1) == 1 {
			slog.Warn("journal buffer full, dropping records")
		}
		if j.opts.OnDrop != nil {
			j.opts.OnDrop()
		}
		return ErrBufferFull
	}
}

// Dropped returns how many records Write refused for a full buffer.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Follow writes every broker event until ctx is cancelled.
func (j *Journal) Follow(ctx context.Context, broker *events.Broker) {
	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-j.done:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := j.Write(evt); err != nil {
				slog.Debug("journal skipped event", "type", evt.Type, "dropped", j.Dropped(), "error", err)
			}
		}
	}
}

// Close flushes queued records and closes the current file.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		close(j.done)
		j.wg.Wait()

	drain:
		for {
			select {
			case record := <-j.writeCh:
				j.writeRecord(record)
			default:
				break drain
			}
		}

		j.mu.Lock()
		defer j.mu.Unlock()
		if j.logger != nil {
			err = j.logger.Close()
			j.logger = nil
		}
	})
	return err
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case record := <-j.writeCh:
			j.writeRecord(record)
		case <-j.done:
			return
		}
	}
}

func (j *Journal) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal record encode failed", "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := j.opts.Now().UTC().Format("2006-01-02")
	if date != j.currentDate || j.logger == nil {
		if err := j.rotateForDate(date); err != nil {
			slog.Error("journal rotate failed", "date", date, "error", err)
			return
		}
	}
	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err)
	}
}

func (j *Journal) rotateForDate(date string) error {
	if j.logger != nil {
		_ = j.logger.Close()
		j.logger = nil
	}
	dir := filepath.Join(j.opts.Dir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	filename := filepath.Join(dir, j.opts.SessionID+".jsonl")
	j.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.opts.MaxSizeMB,
		MaxBackups: j.opts.MaxBackups,
		MaxAge:     j.opts.MaxAgeDays,
	}
	j.currentDate = date
	slog.Info("journal file opened", "file", filename)
	return nil
}

// Path returns the file records for t are written to.
func (j *Journal) Path(t time.Time) string {
	return filepath.Join(j.opts.Dir, t.UTC().Format("2006-01-02"), j.opts.SessionID+".jsonl")
}
