package wire

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/user/nebula-blue/logger"
)

// ConnectionEvent is one line of the connection event log
type ConnectionEvent struct {
	Timestamp int64             `json:"timestamp"` // nanoseconds since epoch
	Event     string            `json:"event"`     // connection_accepted, connection_refused, mtu_negotiated, ...
	RemoteID  string            `json:"remote_id,omitempty"`
	ConnID    string            `json:"conn_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// ConnectionEventLogger appends connection events to a JSONL file. A logger
// created with an empty directory is disabled and drops every event.
type ConnectionEventLogger struct {
	localID string
	logPath string
	mutex   sync.Mutex
	enabled bool
}

// NewConnectionEventLogger creates an event logger writing to
// <dir>/connection_events.jsonl
func NewConnectionEventLogger(localID, dir string) (*ConnectionEventLogger, error) {
	if dir == "" {
		return &ConnectionEventLogger{localID: localID}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("event log dir: %w", err)
	}
	return &ConnectionEventLogger{
		localID: localID,
		logPath: filepath.Join(dir, "connection_events.jsonl"),
		enabled: true,
	}, nil
}

// Path returns the log file path, or "" when disabled
func (cel *ConnectionEventLogger) Path() string {
	if cel == nil {
		return ""
	}
	return cel.logPath
}

// Log writes a connection event to the JSONL file
func (cel *ConnectionEventLogger) Log(event ConnectionEvent) {
	if cel == nil || !cel.enabled {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixNano()
	}

	cel.mutex.Lock()
	defer cel.mutex.Unlock()

	prefix := shortHash(cel.localID) + " connection_events"
	f, err := os.OpenFile(cel.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Warn(prefix, "Failed to open connection event log: %v", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn(prefix, "Failed to marshal connection event: %v", err)
		return
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		logger.Warn(prefix, "Failed to write connection event: %v", err)
	}
}

func (cel *ConnectionEventLogger) LogConnectionAccepted(remoteID, connID string) {
	cel.Log(ConnectionEvent{Event: "connection_accepted", RemoteID: remoteID, ConnID: connID})
}

func (cel *ConnectionEventLogger) LogConnectionRefused(remoteID string, err error) {
	cel.Log(ConnectionEvent{Event: "connection_refused", RemoteID: remoteID, Error: err.Error()})
}

func (cel *ConnectionEventLogger) LogMTUNegotiated(connID string, mtu uint16) {
	cel.Log(ConnectionEvent{
		Event:   "mtu_negotiated",
		ConnID:  connID,
		Details: map[string]string{"mtu": strconv.Itoa(int(mtu))},
	})
}

func (cel *ConnectionEventLogger) LogSubscription(connID string, enabled bool) {
	cel.Log(ConnectionEvent{
		Event:   "cccd_written",
		ConnID:  connID,
		Details: map[string]string{"notify": strconv.FormatBool(enabled)},
	})
}

func (cel *ConnectionEventLogger) LogDisconnected(remoteID, connID string, reason uint8) {
	cel.Log(ConnectionEvent{
		Event:    "disconnected",
		RemoteID: remoteID,
		ConnID:   connID,
		Details:  map[string]string{"reason": fmt.Sprintf("0x%02X", reason)},
	})
}
