package amcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/miras-broadcast/miras-core/internal/device"
)

// Codec frames, classifies, and encodes AMCP messages. Framing state is a
// buffer of bytes not yet terminated by CRLF; everything else is stateless
// table lookups.
type Codec struct {
	buf bytes.Buffer
}

// NewCodec returns an empty AMCP codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Feed consumes a raw chunk and returns the complete messages it yields.
// A chunk may end mid-frame; the partial tail is buffered until the next
// chunk completes it.
func (c *Codec) Feed(data []byte) []device.Message {
	c.buf.Write(data)

	var msgs []device.Message
	for {
		raw := c.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(raw[:idx]), "\r")
		c.buf.Next(idx + 1)
		if line == "" {
			continue
		}
		msgs = append(msgs, classify(line))
	}
	return msgs
}

// Encode serializes a command through the command table. AMCP has no
// message ids, so the correlation key is always empty.
func (c *Codec) Encode(cmd device.Command) ([]byte, string, error) {
	spec, ok := commandTable[cmd.Name]
	if !ok {
		return nil, "", fmt.Errorf("amcp: unknown command %q", cmd.Name)
	}
	wire, err := spec.build(cmd.Params)
	if err != nil {
		return nil, "", fmt.Errorf("amcp: %s: %w", cmd.Name, err)
	}
	return []byte(wire + "\r\n"), "", nil
}

// Correlation reports FIFO: AMCP responses arrive in command order.
func (c *Codec) Correlation() device.CorrelationMode {
	return device.CorrelateFIFO
}

// Reset drops any buffered partial frame.
func (c *Codec) Reset() {
	c.buf.Reset()
}

// Commands lists the supported command names.
func (c *Codec) Commands() []string {
	return commandNames()
}

// classify interprets one complete AMCP line.
func classify(line string) device.Message {
	fields := strings.Fields(line)

	switch fields[0] {
	case "RET":
		if len(fields) < 2 {
			break
		}
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			break
		}
		msg := device.Message{
			Class:   device.ClassResponse,
			Success: code >= 200 && code <= 299,
			Raw:     line,
		}
		if rest := strings.TrimSpace(line[len("RET ")+len(fields[1]):]); rest != "" {
			msg.Data = rest
		}
		return msg

	case "INFO":
		if len(fields) < 3 {
			break
		}
		channel, err := strconv.Atoi(fields[1])
		if err != nil {
			break
		}
		payload := strings.TrimSpace(line[strings.Index(line, fields[1])+len(fields[1]):])
		var state map[string]any
		if err := json.Unmarshal([]byte(payload), &state); err != nil {
			break
		}
		return device.Message{
			Class: device.ClassStateUpdate,
			State: map[string]any{channelKey(channel): state},
			Raw:   line,
		}
	}

	return device.Message{Class: device.ClassUnknown, Raw: line}
}

// channelKey names one video channel in device state maps.
func channelKey(channel int) string {
	return "channel:" + strconv.Itoa(channel)
}
