package device

import (
	"container/list"
	"sync"
	"time"
)

// Outcome is the terminal result of one in-flight command. Exactly one
// Outcome is delivered per submitted command, whether it resolves, times
// out, or is failed in bulk on connection loss.
type Outcome struct {
	Success bool
	Data    any
	Code    Code
	Message string
}

// pending is one command awaiting its response.
type pending struct {
	id          string
	key         string
	command     string
	submittedAt time.Time
	timer       *time.Timer
	done        chan Outcome
	completed   bool
}

// commandChannel tracks in-flight commands and pairs them with responses.
// Under CorrelateFIFO responses resolve commands strictly in submission
// order; under CorrelateKeyed they resolve by key. Completion is exactly
// once: whichever of response, timeout, or bulk failure arrives first wins
// and the rest are ignored.
type commandChannel struct {
	mu   sync.Mutex
	mode CorrelationMode

	// fifo holds *pending in submission order (CorrelateFIFO).
	fifo *list.List

	// keyed holds *pending by correlation key (CorrelateKeyed).
	keyed map[string]*pending

	// onAnomaly fires when a response arrives with nothing to resolve.
	onAnomaly func(raw string)
}

func newCommandChannel(mode CorrelationMode, onAnomaly func(raw string)) *commandChannel {
	return &commandChannel{
		mode:      mode,
		fifo:      list.New(),
		keyed:     make(map[string]*pending),
		onAnomaly: onAnomaly,
	}
}

// submit registers a command and arms its timeout. The pending's done
// channel receives exactly one Outcome. The timeout fires only if no
// response, explicit failure, or bulk failure completed the command first.
func (c *commandChannel) submit(id, key, command string, timeout time.Duration) *pending {
	p := &pending{
		id:          id,
		key:         key,
		command:     command,
		submittedAt: time.Now(),
		done:        make(chan Outcome, 1),
	}

	c.mu.Lock()
	if c.mode == CorrelateKeyed {
		c.keyed[key] = p
	} else {
		c.fifo.PushBack(p)
	}
	p.timer = time.AfterFunc(timeout, func() {
		c.expire(p)
	})
	c.mu.Unlock()

	return p
}

// resolve completes the oldest (FIFO) or matching (keyed) pending command
// with a response. A response with no pending command is reported through
// onAnomaly and dropped.
func (c *commandChannel) resolve(msg Message) {
	c.mu.Lock()
	var p *pending
	if c.mode == CorrelateKeyed {
		if q, ok := c.keyed[msg.Key]; ok {
			p = q
			delete(c.keyed, msg.Key)
		}
	} else {
		if front := c.fifo.Front(); front != nil {
			p = front.Value.(*pending)
			c.fifo.Remove(front)
		}
	}
	if p == nil {
		c.mu.Unlock()
		if c.onAnomaly != nil {
			c.onAnomaly(msg.Raw)
		}
		return
	}

	p.completed = true
	p.timer.Stop()
	c.mu.Unlock()

	out := Outcome{Success: msg.Success, Data: msg.Data}
	if !msg.Success {
		out.Code = CodeCommandFailed
		out.Message = "device rejected command"
		if s, ok := msg.Data.(string); ok && s != "" {
			out.Message = s
		}
	}
	p.done <- out
}

// expire completes a command with a timeout outcome, unless a response or
// bulk failure got there first.
func (c *commandChannel) expire(p *pending) {
	c.mu.Lock()
	if p.completed {
		c.mu.Unlock()
		return
	}
	p.completed = true
	c.remove(p)
	c.mu.Unlock()

	p.done <- Outcome{Code: CodeTimeout, Message: "command timed out awaiting response"}
}

// fail completes one pending command with the given failure, unless it
// already completed. The Outcome is delivered on p.done either way; the
// caller reads it there.
func (c *commandChannel) fail(p *pending, code Code, message string) {
	c.mu.Lock()
	if p.completed {
		c.mu.Unlock()
		return
	}
	p.completed = true
	p.timer.Stop()
	c.remove(p)
	c.mu.Unlock()

	p.done <- Outcome{Code: code, Message: message}
}

// failAll completes every pending command with the given failure. Called
// on connection loss so no caller is left waiting on a dead connection.
func (c *commandChannel) failAll(code Code, message string) {
	c.mu.Lock()
	var failed []*pending
	for e := c.fifo.Front(); e != nil; e = e.Next() {
		p := e.Value.(*pending)
		if !p.completed {
			p.completed = true
			p.timer.Stop()
			failed = append(failed, p)
		}
	}
	c.fifo.Init()
	for k, p := range c.keyed {
		delete(c.keyed, k)
		if !p.completed {
			p.completed = true
			p.timer.Stop()
			failed = append(failed, p)
		}
	}
	c.mu.Unlock()

	for _, p := range failed {
		p.done <- Outcome{Code: code, Message: message}
	}
}

// pendingCount returns the number of commands awaiting responses.
func (c *commandChannel) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fifo.Len() + len(c.keyed)
}

// remove unlinks p from whichever structure holds it. Caller holds mu.
func (c *commandChannel) remove(p *pending) {
	if c.mode == CorrelateKeyed {
		delete(c.keyed, p.key)
		return
	}
	for e := c.fifo.Front(); e != nil; e = e.Next() {
		if e.Value.(*pending) == p {
			c.fifo.Remove(e)
			return
		}
	}
}
