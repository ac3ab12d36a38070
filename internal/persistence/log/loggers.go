// Package log holds the rotating compressed JSONL writer behind the
// idle activity journal.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends one compressed JSON line per entry and
// rotates to a new file every hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// entry is the journal envelope; Data stays opaque here.
type entry struct {
	TsMs  int64       `json:"ts_ms"`
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ActivityJournal records idle engine happenings: reconciliations,
// offline combat outcomes, logouts. One line per event. Write failures
// are logged and swallowed; the journal is an audit trail, not a
// source of truth.
type ActivityJournal struct {
	w      *JSONLZstdWriter
	logger *stdlog.Logger
}

func NewActivityJournal(dataDir string, logger *stdlog.Logger) *ActivityJournal {
	return &ActivityJournal{
		w:      NewJSONLZstdWriter(filepath.Join(dataDir, "journal"), "idle"),
		logger: logger,
	}
}

func (j *ActivityJournal) Write(event string, v interface{}) {
	if j == nil {
		return
	}
	err := j.w.Write(entry{TsMs: time.Now().UnixMilli(), Event: event, Data: v})
	if err != nil && j.logger != nil {
		j.logger.Printf("[journal] %s: %v", event, err)
	}
}

func (j *ActivityJournal) Close() error {
	if j == nil {
		return nil
	}
	return j.w.Close()
}
