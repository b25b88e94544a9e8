// Package syncq holds backend reports that could not be delivered so they can
// be replayed on the next run.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

const DefaultLimit = 500

type Command struct {
	Path    string          `json:"path"`
	Body    json.RawMessage `json:"body"`
	EventID string          `json:"event_id"`
}

// SendFunc delivers one queued command.
type SendFunc func(ctx context.Context, cmd Command) error

// Queue is a JSON file of pending commands. Oldest entries are dropped once
// the limit is reached.
type Queue struct {
	path  string
	limit int
	mu    sync.Mutex

	// drainMu serializes Drain without blocking Push during sends.
	drainMu sync.Mutex
}

func New(dir string, limit int) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Queue{path: filepath.Join(dir, "queue.json"), limit: limit}, nil
}

func (q *Queue) Path() string {
	return q.path
}

func (q *Queue) Load() ([]Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *Queue) Push(cmd Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	commands, err := q.load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	if over := len(commands) - q.limit; over > 0 {
		commands = commands[over:]
	}
	return q.save(commands)
}

// Drain sends queued commands in order and stops at the first failure,
// keeping that command and everything after it. Commands pushed while a
// drain is sending are kept.
func (q *Queue) Drain(ctx context.Context, send SendFunc) (int, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	q.mu.Lock()
	commands, err := q.load()
	q.mu.Unlock()
	if err != nil {
		return 0, err
	}
	sent := 0
	var sendErr error
	for _, cmd := range commands {
		if err := ctx.Err(); err != nil {
			sendErr = err
			break
		}
		if err := send(ctx, cmd); err != nil {
			sendErr = err
			break
		}
		sent++
	}
	if sent == 0 {
		return 0, sendErr
	}
	if err := q.remove(commands[:sent]); err != nil {
		return sent, errors.Join(sendErr, err)
	}
	return sent, sendErr
}

// remove drops delivered commands from the file, leaving anything pushed
// since they were read.
func (q *Queue) remove(delivered []Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	current, err := q.load()
	if err != nil {
		return err
	}
	done := make(map[string]int, len(delivered))
	for _, cmd := range delivered {
		done[cmd.key()]++
	}
	kept := current[:0]
	for _, cmd := range current {
		if k := cmd.key(); done[k] > 0 {
			done[k]--
			continue
		}
		kept = append(kept, cmd)
	}
	return q.save(kept)
}

func (c Command) key() string {
	if c.EventID != "" {
		return c.EventID
	}
	return c.Path + "\x00" + string(c.Body)
}

func (q *Queue) load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) save(commands []Command) error {
	if len(commands) == 0 {
		if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, raw, 0o600)
}
