package protocol

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	cmdLogBuffer        = 1024
	maxCommandsPerSec   = 2000
	maxCommandsPerPlayer = 60
	cmdFlushInterval    = 100 * time.Millisecond
)

// CommandEntry is one protocol command received from a seated player,
// recorded before validation (rejected commands included), as
// newline-delimited JSON on disk. Together with the battle seed and the battle-start snapshot,
// the command stream is sufficient to replay a battle offline.
type CommandEntry struct {
	Sequence uint64          `json:"seq"`
	WallTime int64           `json:"wallTime"`
	RoomID   string          `json:"roomId"`
	PlayerID string          `json:"playerId"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// CommandLog is a bounded, rate-limited, asynchronously flushed record of
// protocol commands. Under flood the log drops entries rather than
// applying backpressure to the simulation.
type CommandLog struct {
	globalLimiter  *rate.Limiter
	playerLimiters sync.Map // map[string]*rate.Limiter

	entries  chan CommandEntry
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	seq     atomic.Uint64
	total   atomic.Uint64
	dropped atomic.Uint64
}

// NewCommandLog creates a log; Start opens the sink.
func NewCommandLog() *CommandLog {
	return &CommandLog{
		globalLimiter: rate.NewLimiter(maxCommandsPerSec, maxCommandsPerSec/10),
		entries:       make(chan CommandEntry, cmdLogBuffer),
		stopChan:      make(chan struct{}),
	}
}

// Start opens the output file and begins the async writer.
func (l *CommandLog) Start(path string) error {
	if l.running.Load() {
		return nil
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		l.file = f
	}
	l.running.Store(true)
	l.wg.Add(1)
	go l.writerLoop()
	return nil
}

// Stop flushes and closes the log.
func (l *CommandLog) Stop() {
	l.stopOnce.Do(func() {
		l.running.Store(false)
		close(l.stopChan)
		l.wg.Wait()
		l.fileMu.Lock()
		if l.file != nil {
			l.file.Close()
		}
		l.fileMu.Unlock()
	})
}

// Record appends one command, subject to rate limits. Returns false when
// rate limited or the buffer is full.
func (l *CommandLog) Record(roomID, playerID string, env Envelope) bool {
	if !l.running.Load() {
		return false
	}
	if !l.globalLimiter.Allow() {
		l.dropped.Add(1)
		return false
	}
	if playerID != "" && !l.playerLimiter(playerID).Allow() {
		l.dropped.Add(1)
		return false
	}

	entry := CommandEntry{
		Sequence: l.seq.Add(1),
		WallTime: time.Now().UnixMilli(),
		RoomID:   roomID,
		PlayerID: playerID,
		Type:     env.Type,
		Payload:  env.Payload,
	}
	select {
	case l.entries <- entry:
		l.total.Add(1)
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

func (l *CommandLog) playerLimiter(playerID string) *rate.Limiter {
	if v, ok := l.playerLimiters.Load(playerID); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(maxCommandsPerPlayer, maxCommandsPerPlayer/4)
	actual, _ := l.playerLimiters.LoadOrStore(playerID, limiter)
	return actual.(*rate.Limiter)
}

func (l *CommandLog) writerLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(cmdFlushInterval)
	defer ticker.Stop()

	batch := make([]CommandEntry, 0, 64)
	for {
		select {
		case <-l.stopChan:
			batch = l.drain(batch[:0])
			l.flush(batch)
			return
		case <-ticker.C:
			batch = l.drain(batch[:0])
			if len(batch) > 0 {
				l.flush(batch)
			}
		}
	}
}

func (l *CommandLog) drain(batch []CommandEntry) []CommandEntry {
	for {
		select {
		case e := <-l.entries:
			batch = append(batch, e)
			if len(batch) >= 64 {
				return batch
			}
		default:
			return batch
		}
	}
}

func (l *CommandLog) flush(batch []CommandEntry) {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	if l.file == nil {
		return
	}
	for _, entry := range batch {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		l.file.Write(data)
		l.file.Write([]byte("\n"))
	}
}

// Stats reports counters for the observability endpoint.
func (l *CommandLog) Stats() map[string]uint64 {
	return map[string]uint64{
		"total":   l.total.Load(),
		"dropped": l.dropped.Load(),
	}
}
