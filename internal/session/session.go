// Package session implements the line-delimited JSON-RPC session with one
// worker process: framing over the worker's stdio streams, correlation of
// replies to pending calls by message id, and the initialize handshake.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mattjoyce/foreman/internal/log"
	"github.com/mattjoyce/foreman/internal/protocol"
)

// ErrSessionClosed is returned when sending on a session whose stream is no
// longer writable. Pending calls are resolved with it on Close.
var ErrSessionClosed = errors.New("session closed")

// maxLineBytes caps a single protocol line read from the worker.
const maxLineBytes = 1 << 20 // 1 MiB

// Reply is the outcome of one correlated call. Err is either a transport
// failure (session closed) or a *protocol.Error from the worker.
type Reply struct {
	Result json.RawMessage
	Err    error
}

// Handler receives inbound traffic that is not a reply to a pending call:
// notifications, worker-initiated requests, and replies whose id is unknown.
type Handler func(msg *protocol.Message)

// Session is the framing and correlation layer over one worker's
// stdin/stdout. The read loop runs on its own goroutine; replies for a given
// worker are therefore processed in stream order.
type Session struct {
	serviceID string
	logger    *slog.Logger
	onMessage Handler

	writeMu sync.Mutex
	stdin   io.WriteCloser

	mu      sync.Mutex
	pending map[string]chan Reply
	closed  bool

	done chan struct{}
}

// New creates a session over the worker's streams and starts the read loop.
// onMessage may be nil.
func New(serviceID string, stdin io.WriteCloser, stdout io.Reader, onMessage Handler) *Session {
	s := &Session{
		serviceID: serviceID,
		logger:    log.WithComponent("session").With("service_id", serviceID),
		onMessage: onMessage,
		stdin:     stdin,
		pending:   make(map[string]chan Reply),
		done:      make(chan struct{}),
	}
	go s.readLoop(stdout)
	return s
}

// Send serializes msg as one newline-terminated line on the worker's input
// stream. Returns ErrSessionClosed if the session has been closed.
func (s *Session) Send(msg *protocol.Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}

	s.logger.Debug("sent message", "method", msg.Method, "id", msg.ID)
	return nil
}

// Call registers id in the correlation table, then sends a request for
// method. The returned channel receives the reply exactly once. The id must
// be unique among the session's currently pending calls.
func (s *Session) Call(id, method string, params any) (<-chan Reply, error) {
	msg, err := protocol.NewCall(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("build call: %w", err)
	}

	ch := make(chan Reply, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if _, dup := s.pending[id]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("duplicate call id %q", id)
	}
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.Send(msg); err != nil {
		s.Forget(id)
		return nil, err
	}
	return ch, nil
}

// Notify sends a request without registering a pending call. Any reply the
// worker produces for it is routed to the session's message handler.
func (s *Session) Notify(id, method string, params any) error {
	msg, err := protocol.NewCall(id, method, params)
	if err != nil {
		return fmt.Errorf("build notify: %w", err)
	}
	return s.Send(msg)
}

// Forget removes a pending call without resolving it. Used when the caller
// gives up on a reply (timeout); a late reply for the id is then ignored.
func (s *Session) Forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// PendingCalls returns the number of calls awaiting a reply.
func (s *Session) PendingCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Initialize performs the handshake and returns the worker's declared
// capabilities.
func (s *Session) Initialize(ctx context.Context, client protocol.ClientInfo) (*protocol.Capabilities, error) {
	params := protocol.InitializeParams{
		ProtocolVersion: protocol.Version,
		Capabilities:    map[string]any{"tools": map[string]any{}, "resources": map[string]any{}},
		ClientInfo:      client,
	}

	ch, err := s.Call("init-"+uuid.NewString(), protocol.MethodInitialize, params)
	if err != nil {
		return nil, fmt.Errorf("send initialize: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-ch:
		if reply.Err != nil {
			return nil, fmt.Errorf("initialize failed: %w", reply.Err)
		}
		var result protocol.InitializeResult
		if len(reply.Result) > 0 {
			if err := json.Unmarshal(reply.Result, &result); err != nil {
				return nil, fmt.Errorf("decode initialize result: %w", err)
			}
		}
		return &result.Capabilities, nil
	}
}

// Close marks the session unwritable and resolves every pending call with
// ErrSessionClosed. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.pending
	s.pending = make(map[string]chan Reply)
	s.mu.Unlock()

	for id, ch := range pending {
		ch <- Reply{Err: ErrSessionClosed}
		s.logger.Debug("resolved pending call on close", "id", id)
	}
	_ = s.stdin.Close()
}

// Done is closed when the read loop has observed end of stream.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// readLoop consumes the worker's output stream line by line. A single read
// may deliver several newline-terminated messages, and one message may span
// several reads; bufio accumulates until a full line is available. One
// malformed line is logged and discarded without ending the session.
func (s *Session) readLoop(stdout io.Reader) {
	defer close(s.done)

	reader := bufio.NewReaderSize(stdout, 64*1024)
	for {
		line, err := readLine(reader)
		if len(line) > 0 {
			s.handleLine(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("worker stream read failed", "error", err)
			}
			return
		}
	}
}

// readLine reads one newline-terminated line, tolerating lines longer than
// the reader's buffer up to maxLineBytes.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil || !errors.Is(err, bufio.ErrBufferFull) {
			return line, err
		}
		if len(line) > maxLineBytes {
			return line, fmt.Errorf("protocol line exceeds %d bytes", maxLineBytes)
		}
	}
}

func (s *Session) handleLine(line []byte) {
	trimmed := string(line)
	for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '\n' || trimmed[len(trimmed)-1] == '\r') {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if trimmed == "" {
		return
	}

	var msg protocol.Message
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		// One bad line never kills the session.
		s.logger.Error("failed to parse protocol line", "error", err, "line", trimmed)
		return
	}

	s.logger.Debug("received message", "method", msg.Method, "id", msg.ID)

	if msg.IsReply() {
		id := msg.IDString()
		s.mu.Lock()
		ch, ok := s.pending[id]
		if ok {
			delete(s.pending, id)
		}
		s.mu.Unlock()

		if ok {
			reply := Reply{Result: msg.Result}
			if msg.Error != nil {
				reply.Err = msg.Error
			}
			ch <- reply
			return
		}
	}

	if s.onMessage != nil {
		s.onMessage(&msg)
	}
}
