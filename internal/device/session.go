package device

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionOptions carries the optional collaborators for a session.
type SessionOptions struct {
	Logger  Logger
	Metrics Metrics
}

// Session manages the connection lifecycle and command traffic for one
// device. It owns a Transport and a Codec, serializes all state changes
// behind a mutex, and reports transitions through a single event callback.
//
// Lifecycle: Disconnected, Connecting, Connected, Error. Unsolicited
// connection loss moves the session to Error and schedules automatic
// reconnection up to MaxReconnectAttempts; an explicit Disconnect cancels
// any pending reconnect and moves to Disconnected. Once the reconnect
// budget is exhausted the session stays in Error until Connect is called
// again.
type Session struct {
	cfg       Config
	transport Transport
	codec     Codec
	channel   *commandChannel
	logger    Logger
	metrics   Metrics

	mu                sync.Mutex
	status            Status
	lastErr           *Error
	lastConnectedAt   *time.Time
	reconnectAttempts int
	reconnectTimer    *time.Timer
	closing           bool
	state             map[string]any
	onEvent           func(Event)
}

// NewSession builds a session for one device. The transport's callbacks
// are claimed by the session; callers must not install their own.
func NewSession(cfg Config, transport Transport, codec Codec, opts SessionOptions) *Session {
	s := &Session{
		cfg:       cfg.withDefaults(),
		transport: transport,
		codec:     codec,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		status:    StatusDisconnected,
		state:     make(map[string]any),
	}
	s.channel = newCommandChannel(codec.Correlation(), s.recordAnomaly)
	transport.SetOnData(s.handleData)
	transport.SetOnClose(s.handleTransportClose)
	return s
}

// ID returns the device id.
func (s *Session) ID() string { return s.cfg.ID }

// Family returns the device protocol family.
func (s *Session) Family() string { return s.cfg.Family }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetOnEvent installs the event callback. Events are delivered
// sequentially per session, outside any session lock; the callback must
// not call back into the session synchronously with blocking work.
func (s *Session) SetOnEvent(fn func(Event)) {
	s.mu.Lock()
	s.onEvent = fn
	s.mu.Unlock()
}

// Connect establishes the device connection. Returns nil immediately if
// already connected or connecting. On failure the session moves to Error
// and, within the reconnect budget, schedules another attempt.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusConnected || s.status == StatusConnecting {
		s.mu.Unlock()
		return nil
	}
	s.stopReconnectLocked()
	s.closing = false
	s.status = StatusConnecting
	s.mu.Unlock()

	s.reportStatus(StatusConnecting)
	s.logDebug("connecting", "host", s.cfg.Host, "port", s.cfg.Port)

	s.codec.Reset()
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	err := s.transport.Open(dialCtx)
	cancel()

	if err != nil {
		derr := newError(CodeConnectionFailed, s.cfg.ID, s.cfg.Family, "failed to connect", err)
		s.mu.Lock()
		if s.closing {
			// Disconnect landed while the dial was in flight and has
			// already reported the disconnected state. The explicit
			// disconnect wins: stay out of Error, arm no reconnect.
			s.mu.Unlock()
			return derr
		}
		s.status = StatusError
		s.lastErr = derr
		s.scheduleReconnectLocked()
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.reportStatus(StatusError)
		s.logError("connection failed", "error", err)
		s.emit(Event{Kind: EventError, DeviceID: s.cfg.ID, Snapshot: snap, Err: derr, Timestamp: time.Now()})
		return derr
	}

	now := time.Now()
	s.mu.Lock()
	s.status = StatusConnected
	s.lastErr = nil
	s.lastConnectedAt = &now
	s.reconnectAttempts = 0
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.reportStatus(StatusConnected)
	s.logInfo("connected", "host", s.cfg.Host, "port", s.cfg.Port)
	s.emit(Event{Kind: EventConnected, DeviceID: s.cfg.ID, Snapshot: snap, Timestamp: now})
	return nil
}

// Disconnect tears the connection down and cancels any scheduled
// reconnect. Pending commands complete with a ConnectionClosed failure.
// Safe to call in any state.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.closing = true
	s.stopReconnectLocked()
	if s.status == StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusDisconnected
	s.lastErr = nil
	s.reconnectAttempts = 0
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.channel.failAll(CodeConnectionClosed, "device disconnected")
	err := s.transport.Close()

	s.reportStatus(StatusDisconnected)
	s.logInfo("disconnected")
	s.emit(Event{Kind: EventDisconnected, DeviceID: s.cfg.ID, Snapshot: snap, Timestamp: time.Now()})
	return err
}

// Execute sends one command and waits for its outcome. It never returns
// an error: every failure mode is folded into the OperationResult so the
// wire shape is uniform for clients. The command timeout is the device's
// configured timeout, shortened by the context deadline if that is sooner.
func (s *Session) Execute(ctx context.Context, cmd Command) OperationResult {
	opID := uuid.NewString()
	start := time.Now()

	s.mu.Lock()
	connected := s.status == StatusConnected
	s.mu.Unlock()
	if !connected {
		return s.failureResult(opID, CodeNotConnected, "device is not connected")
	}

	payload, key, err := s.codec.Encode(cmd)
	if err != nil {
		return s.failureResult(opID, CodeCommandFailed, err.Error())
	}

	// Register before sending so a fast response cannot arrive with
	// nothing to resolve.
	p := s.channel.submit(opID, key, cmd.Name, s.timeoutFor(ctx))

	if err := s.transport.Send(payload); err != nil {
		s.channel.fail(p, CodeConnectionClosed, "send failed: "+err.Error())
	}

	var out Outcome
	select {
	case out = <-p.done:
	case <-ctx.Done():
		code := CodeCancelled
		msg := "cancelled by caller"
		if ctx.Err() == context.DeadlineExceeded {
			code = CodeTimeout
			msg = "command timed out awaiting response"
		}
		s.channel.fail(p, code, msg)
		out = <-p.done
	}

	if s.metrics != nil {
		s.metrics.CommandCompleted(s.cfg.ID, cmd.Name, time.Since(start), out.Success)
	}
	if !out.Success {
		s.logWarn("command failed", "command", cmd.Name, "code", out.Code, "message", out.Message)
		return s.failureResult(opID, out.Code, out.Message)
	}

	s.logDebug("command completed", "command", cmd.Name, "duration", time.Since(start))
	return OperationResult{
		Success:     true,
		DeviceID:    s.cfg.ID,
		OperationID: opID,
		Timestamp:   time.Now(),
		Data:        out.Data,
	}
}

// Snapshot returns a copy of the session's observable state.
func (s *Session) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Commands lists the command names the device's protocol supports.
func (s *Session) Commands() []string {
	return s.codec.Commands()
}

// handleData is the transport receive callback. Responses resolve pending
// commands; state updates merge into the device state and fan out as
// events; unclassifiable messages count as protocol anomalies.
func (s *Session) handleData(data []byte) {
	for _, msg := range s.codec.Feed(data) {
		switch msg.Class {
		case ClassResponse:
			s.channel.resolve(msg)
		case ClassStateUpdate:
			s.mu.Lock()
			for k, v := range msg.State {
				s.state[k] = v
			}
			snap := s.snapshotLocked()
			s.mu.Unlock()
			s.emit(Event{Kind: EventStateChanged, DeviceID: s.cfg.ID, Snapshot: snap, State: msg.State, Timestamp: time.Now()})
		case ClassUnknown:
			s.recordAnomaly(msg.Raw)
		}
	}
}

// handleTransportClose is the transport loss callback. Never fires for a
// close the session itself requested.
func (s *Session) handleTransportClose(cause error) {
	s.mu.Lock()
	if s.closing || s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	derr := newError(CodeConnectionClosed, s.cfg.ID, s.cfg.Family, "connection lost", cause)
	s.status = StatusError
	s.lastErr = derr
	s.scheduleReconnectLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.channel.failAll(CodeConnectionClosed, "connection lost")
	s.reportStatus(StatusError)
	s.logWarn("connection lost", "error", cause)
	s.emit(Event{Kind: EventError, DeviceID: s.cfg.ID, Snapshot: snap, Err: derr, Timestamp: time.Now()})
}

// scheduleReconnectLocked arms the reconnect timer if attempts remain.
// Caller holds mu. The timer callback re-checks the status so an explicit
// Disconnect or Connect in the meantime wins.
func (s *Session) scheduleReconnectLocked() {
	if s.cfg.MaxReconnectAttempts <= 0 {
		return
	}
	if s.reconnectAttempts >= s.cfg.MaxReconnectAttempts {
		s.logWarn("reconnect attempts exhausted", "attempts", s.reconnectAttempts)
		return
	}
	s.reconnectAttempts++
	attempt := s.reconnectAttempts
	s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectInterval, func() {
		s.mu.Lock()
		stale := s.status != StatusError
		s.mu.Unlock()
		if stale {
			return
		}
		s.logInfo("reconnecting", "attempt", attempt, "max", s.cfg.MaxReconnectAttempts)
		_ = s.Connect(context.Background())
	})
}

// stopReconnectLocked cancels a scheduled reconnect. Caller holds mu.
func (s *Session) stopReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

// snapshotLocked builds a StateSnapshot. Caller holds mu.
func (s *Session) snapshotLocked() StateSnapshot {
	snap := StateSnapshot{
		ID:              s.cfg.ID,
		Name:            s.cfg.Name,
		Family:          s.cfg.Family,
		Status:          s.status,
		LastConnectedAt: s.lastConnectedAt,
		PendingCommands: s.channel.pendingCount(),
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if len(s.state) > 0 {
		snap.State = make(map[string]any, len(s.state))
		for k, v := range s.state {
			snap.State[k] = v
		}
	}
	return snap
}

// timeoutFor returns the effective command timeout for one Execute call.
func (s *Session) timeoutFor(ctx context.Context) time.Duration {
	timeout := s.cfg.CommandTimeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

// failureResult builds a failed OperationResult in the uniform wire shape.
func (s *Session) failureResult(opID string, code Code, message string) OperationResult {
	return OperationResult{
		Success:     false,
		DeviceID:    s.cfg.ID,
		OperationID: opID,
		Timestamp:   time.Now(),
		Error:       &ResultError{Code: string(code), Message: message},
	}
}

// recordAnomaly counts an unmatched or unparseable device message.
func (s *Session) recordAnomaly(raw string) {
	if s.metrics != nil {
		s.metrics.ProtocolAnomaly(s.cfg.ID)
	}
	s.logWarn("protocol anomaly", "raw", raw)
}

// emit delivers an event to the registered callback outside any lock.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	fn := s.onEvent
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (s *Session) reportStatus(status Status) {
	if s.metrics != nil {
		s.metrics.StatusChanged(s.cfg.ID, status)
	}
}

func (s *Session) logDebug(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, append([]any{"device_id", s.cfg.ID}, kv...)...)
	}
}

func (s *Session) logInfo(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Info(msg, append([]any{"device_id", s.cfg.ID}, kv...)...)
	}
}

func (s *Session) logWarn(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, append([]any{"device_id", s.cfg.ID}, kv...)...)
	}
}

func (s *Session) logError(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Error(msg, append([]any{"device_id", s.cfg.ID}, kv...)...)
	}
}
