package source

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// connState is the connection-lifecycle state shared by both transport
// implementations (spec.md §4.1's state machine).
type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateRunning
	stateReconnecting
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "DISCONNECTED"
	case stateConnecting:
		return "CONNECTING"
	case stateRunning:
		return "RUNNING"
	case stateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

const (
	handshakeTimeout  = 30 * time.Second
	reconnectDelay    = 5 * time.Second
	reconnectBackoff  = 10 * time.Second
)

// stateMachine holds the connection state, stats counters, and the
// reconnect-in-progress guard common to both Source implementations.
type stateMachine struct {
	state atomic.Int32

	connMu       sync.RWMutex
	connectionID string

	reconnecting atomic.Bool

	transactionsReceived atomic.Int64
	errors               atomic.Int64
	startTimeUnixMS      int64

	log zerolog.Logger
}

func newStateMachine(log zerolog.Logger) *stateMachine {
	return &stateMachine{log: log, startTimeUnixMS: time.Now().UnixMilli()}
}

func (m *stateMachine) setState(s connState) {
	m.state.Store(int32(s))
}

func (m *stateMachine) currentState() connState {
	return connState(m.state.Load())
}

// newConnection generates a fresh random connectionId, as spec.md §4.1
// requires on every entry to CONNECTING.
func (m *stateMachine) newConnection() string {
	id := randomID()
	m.connMu.Lock()
	m.connectionID = id
	m.connMu.Unlock()
	return id
}

func (m *stateMachine) currentConnectionID() string {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connectionID
}

// clearConnection detaches the current connectionId (§4.1 "cleanup on
// connection drop").
func (m *stateMachine) clearConnection() {
	m.connMu.Lock()
	m.connectionID = ""
	m.connMu.Unlock()
}

// belongsToCurrentConnection reports whether connID is the current
// connectionId. Neither Source calls it: each stamps a record with the
// connectionId current at decode time and delivers it without this check.
func (m *stateMachine) belongsToCurrentConnection(connID string) bool {
	return m.currentConnectionID() == connID
}

func (m *stateMachine) recordReceived() { m.transactionsReceived.Add(1) }
func (m *stateMachine) recordError()    { m.errors.Add(1) }

func (m *stateMachine) stats() Stats {
	return Stats{
		TransactionsReceived: m.transactionsReceived.Load(),
		Errors:               m.errors.Load(),
		StartTimeUnixMS:      m.startTimeUnixMS,
		State:                m.currentState().String(),
		ConnectionID:         m.currentConnectionID(),
	}
}

// tryBeginReconnect is the idempotency guard from spec.md §4.1: concurrent
// reconnect requests no-op if one is already in progress.
func (m *stateMachine) tryBeginReconnect() bool {
	return m.reconnecting.CompareAndSwap(false, true)
}

func (m *stateMachine) endReconnect() {
	m.reconnecting.Store(false)
}

func randomID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
