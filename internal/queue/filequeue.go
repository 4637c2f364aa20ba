package queue

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileQueue is a durable, single-process Queue backed by an append-only
// JSON-lines log, used for local development and tests in place of SQS.
// Its in-memory ordering is a plain FIFO: a slice appended to on Send
// and popped from the head on Receive, widened
// here with per-message visibility timeouts and receipt handles so it can
// satisfy the at-least-once Queue contract.
type FileQueue struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	ready   []*fileEntry
	inFlight map[string]*fileEntry
}

type fileEntry struct {
	ID           string          `json:"id"`
	Body         []byte          `json:"body"`
	ReceiveCount int             `json:"receive_count"`
	VisibleAt    time.Time       `json:"visible_at"`
}

// NewFileQueue opens (or creates) the append-only log at path and replays
// it into memory. Any entries whose Ack was never recorded are requeued
// as ready, giving at-least-once delivery across process restarts.
func NewFileQueue(path string) (*FileQueue, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filequeue: open %s: %w", path, err)
	}
	q := &FileQueue{path: path, file: f, inFlight: make(map[string]*fileEntry)}
	if err := q.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return q, nil
}

// replay reconstructs queue state from the log: "send" records create
// entries, "ack" records remove them. What remains is still pending.
func (q *FileQueue) replay() error {
	if _, err := q.file.Seek(0, 0); err != nil {
		return err
	}
	pending := make(map[string]*fileEntry)
	order := make([]string, 0)
	scanner := bufio.NewScanner(q.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec logRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // tolerate a torn trailing write from a crash
		}
		switch rec.Op {
		case "send":
			pending[rec.Entry.ID] = rec.Entry
			order = append(order, rec.Entry.ID)
		case "ack":
			delete(pending, rec.ID)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if _, err := q.file.Seek(0, 2); err != nil {
		return err
	}
	for _, id := range order {
		if entry, ok := pending[id]; ok {
			q.ready = append(q.ready, entry)
		}
	}
	return nil
}

type logRecord struct {
	Op    string     `json:"op"`
	Entry *fileEntry `json:"entry,omitempty"`
	ID    string     `json:"id,omitempty"`
}

func (q *FileQueue) appendRecord(rec logRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = q.file.Write(line)
	return err
}

// Send appends body to the log and makes it ready after delay.
func (q *FileQueue) Send(_ context.Context, body []byte, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := &fileEntry{
		ID:        uuid.NewString(),
		Body:      append([]byte(nil), body...),
		VisibleAt: time.Now().Add(delay),
	}
	if err := q.appendRecord(logRecord{Op: "send", Entry: entry}); err != nil {
		return err
	}
	q.ready = append(q.ready, entry)
	return nil
}

// Receive pops up to maxMessages ready entries, moving them to in-flight
// under a visibility timeout. While nothing is ready it re-checks every
// 50ms until waitTime has elapsed; FileQueue is for local dev and tests,
// not production-grade long polling.
func (q *FileQueue) Receive(ctx context.Context, maxMessages int, waitTime time.Duration) ([]Envelope, error) {
	deadline := time.Now().Add(waitTime)
	for {
		q.mu.Lock()
		now := time.Now()
		q.reclaimExpiredLocked(now)

		var out []Envelope
		remaining := q.ready[:0]
		for _, entry := range q.ready {
			if len(out) >= maxMessages || entry.VisibleAt.After(now) {
				remaining = append(remaining, entry)
				continue
			}
			entry.ReceiveCount++
			entry.VisibleAt = now.Add(30 * time.Second)
			q.inFlight[entry.ID] = entry
			out = append(out, Envelope{ReceiptHandle: entry.ID, Body: append([]byte(nil), entry.Body...), ReceiveCount: entry.ReceiveCount})
		}
		q.ready = remaining
		q.mu.Unlock()

		if len(out) > 0 || time.Now().After(deadline) || waitTime <= 0 {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// reclaimExpiredLocked moves in-flight entries whose visibility timeout
// has elapsed back onto the ready slice. Caller must hold q.mu.
func (q *FileQueue) reclaimExpiredLocked(now time.Time) {
	for id, entry := range q.inFlight {
		if entry.VisibleAt.Before(now) {
			delete(q.inFlight, id)
			q.ready = append(q.ready, entry)
		}
	}
}

// Ack removes the in-flight entry and records the removal durably.
func (q *FileQueue) Ack(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inFlight[receiptHandle]; !ok {
		return nil
	}
	delete(q.inFlight, receiptHandle)
	return q.appendRecord(logRecord{Op: "ack", ID: receiptHandle})
}

// Release makes an in-flight entry immediately visible again.
func (q *FileQueue) Release(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.inFlight[receiptHandle]
	if !ok {
		return nil
	}
	delete(q.inFlight, receiptHandle)
	entry.VisibleAt = time.Time{}
	q.ready = append(q.ready, entry)
	return nil
}

// Close releases the underlying file handle.
func (q *FileQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.file.Close()
}
