package fetch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Entry is one request-log row: the terminal outcome of a single Get.
type Entry struct {
	TS            time.Time
	Method        string
	URL           string
	Status        int
	Elapsed       time.Duration
	Err           string
	RobotsAllowed bool
}

// RequestLog records terminal fetch outcomes. No outcome is ever dropped.
type RequestLog interface {
	Record(e Entry) error
}

// CSVRequestLog appends outcomes to a CSV file, writing the header when the
// file is first created.
type CSVRequestLog struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

var requestLogHeader = []string{"ts", "method", "url", "status", "elapsed_sec", "error", "robots_allowed"}

// NewCSVRequestLog opens (or creates) the log at path in append mode.
func NewCSVRequestLog(path string) (*CSVRequestLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open request log %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat request log %s: %w", path, err)
	}
	l := &CSVRequestLog{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := l.w.Write(requestLogHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write request log header: %w", err)
		}
		l.w.Flush()
		if err := l.w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("flush request log header: %w", err)
		}
	}
	return l, nil
}

// Record appends one row and flushes it to the file.
func (l *CSVRequestLog) Record(e Entry) error {
	status := ""
	if e.Status != 0 {
		status = strconv.Itoa(e.Status)
	}
	elapsed := ""
	if e.Elapsed > 0 {
		elapsed = strconv.FormatFloat(e.Elapsed.Seconds(), 'f', 3, 64)
	}
	row := []string{
		e.TS.Format("2006-01-02T15:04:05-0700"),
		e.Method,
		e.URL,
		status,
		elapsed,
		e.Err,
		strconv.FormatBool(e.RobotsAllowed),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("write request log row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("flush request log row: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *CSVRequestLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.f.Close()
		return fmt.Errorf("flush request log: %w", err)
	}
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("close request log: %w", err)
	}
	return nil
}
