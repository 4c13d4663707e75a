package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arcsign/dexfeed/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const websocketKeepaliveInterval = 30 * time.Second

// subscribeRequest is the transactionSubscribe JSON-RPC envelope from
// spec.md §6's implementation β contract.
type subscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result int64 `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type notificationEnvelope struct {
	Method string `json:"method"`
	Params struct {
		Subscription int64           `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// wireNotification mirrors the JSON shape of a single transactionNotification
// result payload (§6), decoded into the pipeline's TransactionRecord.
type wireNotification struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Transaction struct {
		Transaction struct {
			AccountKeys         []string `json:"accountKeys"`
			AddressTableLookups []struct {
				AccountKey string `json:"accountKey"`
			} `json:"addressTableLookups"`
			Instructions []struct {
				ProgramIDIndex int    `json:"programIdIndex"`
				Accounts       []int  `json:"accounts"`
				Data           string `json:"data"`
			} `json:"instructions"`
		} `json:"transaction"`
		Meta struct {
			PreBalances       []int64  `json:"preBalances"`
			PostBalances      []int64  `json:"postBalances"`
			LogMessages       []string `json:"logMessages"`
			Err               bool     `json:"err"`
		} `json:"meta"`
	} `json:"transaction"`
	BlockTime *int64 `json:"blockTime"`
}

// WebSocketSource is implementation β: server-pushed notifications over a
// framed socket (§4.1, §6), adapted from the teacher's
// rpc.WebSocketRPCClient reconnect()/readLoop() split.
type WebSocketSource struct {
	endpoint string
	sm       *stateMachine
	log      zerolog.Logger

	connMu sync.RWMutex
	conn   *websocket.Conn

	out        chan *models.TransactionRecord
	closeOnce  sync.Once
	closeChan  chan struct{}
	pingTicker *time.Ticker

	// keepaliveInterval overrides websocketKeepaliveInterval; zero means
	// use the default. Exposed for tests that need a ping cadence faster
	// than the production interval.
	keepaliveInterval time.Duration
}

// NewWebSocketSource constructs a WebSocketSource against endpoint (a
// `wss://` JSON-RPC push endpoint).
func NewWebSocketSource(endpoint string, log zerolog.Logger) *WebSocketSource {
	return &WebSocketSource{
		endpoint:  endpoint,
		sm:        newStateMachine(log),
		log:       log,
		out:       make(chan *models.TransactionRecord, 1024),
		closeChan: make(chan struct{}),
	}
}

func (s *WebSocketSource) Subscribe(ctx context.Context, accounts []string, commitment models.Commitment) (<-chan *models.TransactionRecord, error) {
	if err := s.connectAndSubscribe(ctx, accounts, commitment); err != nil {
		return nil, err
	}

	go s.readLoop(accounts, commitment)
	go s.keepalive(accounts, commitment)

	return s.out, nil
}

func (s *WebSocketSource) connectAndSubscribe(ctx context.Context, accounts []string, commitment models.Commitment) error {
	s.sm.setState(stateConnecting)
	connID := s.sm.newConnection()

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.endpoint, nil)
	if err != nil {
		s.sm.setState(stateDisconnected)
		return fmt.Errorf("websocket dial: %w", err)
	}

	req := subscribeRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "transactionSubscribe",
		Params: []interface{}{
			map[string]interface{}{"failed": false, "accountInclude": accounts},
			map[string]interface{}{
				"commitment":                    string(commitment),
				"encoding":                       "jsonParsed",
				"transactionDetails":             "full",
				"showRewards":                    false,
				"maxSupportedTransactionVersion": 0,
			},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		s.sm.setState(stateDisconnected)
		return fmt.Errorf("write subscribe request: %w", err)
	}

	var resp subscribeResponse
	if err := conn.ReadJSON(&resp); err != nil {
		conn.Close()
		s.sm.setState(stateDisconnected)
		return fmt.Errorf("read subscribe response: %w", err)
	}
	if resp.Error != nil {
		conn.Close()
		s.sm.setState(stateDisconnected)
		return fmt.Errorf("subscribe rejected: %s", resp.Error.Message)
	}

	s.connMu.Lock()
	prev := s.conn
	s.conn = conn
	s.connMu.Unlock()
	if prev != nil {
		prev.Close()
	}

	s.sm.setState(stateRunning)
	s.log.Info().Str("connectionId", connID).Msg("transaction source connected")
	return nil
}

func (s *WebSocketSource) readLoop(accounts []string, commitment models.Commitment) {
	for {
		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()
		if conn == nil {
			return
		}

		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			select {
			case <-s.closeChan:
				return
			default:
			}
			s.sm.recordError()
			s.log.Warn().Err(err).Msg("transaction source read failed, reconnecting")
			s.triggerReconnect(accounts, commitment)
			return
		}

		s.decodeFrame(raw)
	}
}

// decodeFrame wraps per-frame decoding in a fault barrier so one malformed
// frame never kills the read loop (mirrors the teacher's per-endpoint error
// isolation in rpc.HTTPRPCClient.Call).
func (s *WebSocketSource) decodeFrame(raw json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.sm.recordError()
			s.log.Error().Interface("panic", r).Msg("recovered from panic decoding transaction frame")
		}
	}()

	var env notificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Method != "transactionNotification" {
		return
	}

	var wire wireNotification
	if err := json.Unmarshal(env.Params.Result, &wire); err != nil {
		s.sm.recordError()
		return
	}

	record := toTransactionRecord(wire, s.sm.currentConnectionID())
	s.sm.recordReceived()

	select {
	case s.out <- record:
	default:
		s.log.Warn().Msg("transaction source output channel full, dropping record")
	}
}

func toTransactionRecord(wire wireNotification, connectionID string) *models.TransactionRecord {
	instructions := make([]models.CompiledInstruction, 0, len(wire.Transaction.Transaction.Instructions))
	for _, ix := range wire.Transaction.Transaction.Instructions {
		instructions = append(instructions, models.CompiledInstruction{
			ProgramIDIndex: ix.ProgramIDIndex,
			Accounts:       ix.Accounts,
			Data:           []byte(ix.Data),
		})
	}
	lookups := make([]models.AddressTableLookup, 0, len(wire.Transaction.Transaction.AddressTableLookups))
	for _, l := range wire.Transaction.Transaction.AddressTableLookups {
		lookups = append(lookups, models.AddressTableLookup{AccountKey: l.AccountKey})
	}

	return &models.TransactionRecord{
		Signature: wire.Signature,
		Slot:      wire.Slot,
		Message: models.TxMessage{
			AccountKeys:         wire.Transaction.Transaction.AccountKeys,
			Instructions:        instructions,
			AddressTableLookups: lookups,
		},
		Meta: models.TxMeta{
			PreBalances:  wire.Transaction.Meta.PreBalances,
			PostBalances: wire.Transaction.Meta.PostBalances,
			LogMessages:  wire.Transaction.Meta.LogMessages,
			Err:          wire.Transaction.Meta.Err,
		},
		BlockTimeSec: wire.BlockTime,
		ConnectionID: connectionID,
	}
}

func (s *WebSocketSource) keepalive(accounts []string, commitment models.Commitment) {
	interval := s.keepaliveInterval
	if interval <= 0 {
		interval = websocketKeepaliveInterval
	}
	s.pingTicker = time.NewTicker(interval)
	defer s.pingTicker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-s.pingTicker.C:
			s.pingOnce(accounts, commitment)
		}
	}
}

// pingOnce sends a single keepalive ping. A failed ping is one of the
// RECONNECTING triggers from RUNNING (§4.1): the connection is assumed dead
// and a reconnect is kicked off rather than left to the next read failure.
func (s *WebSocketSource) pingOnce(accounts []string, commitment models.Commitment) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		return
	}
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.sm.recordError()
		s.log.Warn().Err(err).Msg("transaction source keepalive ping failed, reconnecting")
		s.triggerReconnect(accounts, commitment)
	}
}

// triggerReconnect schedules one reconnect attempt after reconnectDelay,
// backing off to reconnectBackoff on repeated failure (§4.1). Concurrent
// calls are idempotent via the shared state machine's guard.
func (s *WebSocketSource) triggerReconnect(accounts []string, commitment models.Commitment) {
	if !s.sm.tryBeginReconnect() {
		return
	}
	defer s.sm.endReconnect()

	s.sm.setState(stateReconnecting)
	s.sm.clearConnection()

	delay := reconnectDelay
	for {
		select {
		case <-s.closeChan:
			return
		case <-time.After(delay):
			ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
			err := s.connectAndSubscribe(ctx, accounts, commitment)
			cancel()
			if err != nil {
				s.sm.recordError()
				delay = reconnectBackoff
				continue
			}
			go s.readLoop(accounts, commitment)
			return
		}
	}
}

func (s *WebSocketSource) Stats() Stats {
	return s.sm.stats()
}

func (s *WebSocketSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeChan)
		s.sm.setState(stateDisconnected)
		s.sm.clearConnection()
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()
	})
	return nil
}
