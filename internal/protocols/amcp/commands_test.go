package amcp

import (
	"strings"
	"testing"

	"github.com/miras-broadcast/miras-core/internal/device"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  device.Command
		want string
	}{
		{
			name: "play minimal",
			cmd:  device.Command{Name: "play", Params: map[string]any{"channel": 1, "clip": "intro"}},
			want: `PLAY 1-10 "intro"`,
		},
		{
			name: "play with loop and transition",
			cmd: device.Command{Name: "play", Params: map[string]any{
				"channel": 1, "layer": 20, "clip": "bumper", "loop": true, "transition": "MIX 25",
			}},
			want: `PLAY 1-20 "bumper" LOOP MIX 25`,
		},
		{
			name: "play with json numbers",
			cmd: device.Command{Name: "play", Params: map[string]any{
				"channel": float64(2), "layer": float64(5), "clip": "promo",
			}},
			want: `PLAY 2-5 "promo"`,
		},
		{
			name: "play escapes quotes in clip",
			cmd:  device.Command{Name: "play", Params: map[string]any{"channel": 1, "clip": `the "show"`}},
			want: `PLAY 1-10 "the \"show\""`,
		},
		{
			name: "load with loop",
			cmd:  device.Command{Name: "load", Params: map[string]any{"channel": 1, "clip": "loop-bg", "loop": true}},
			want: `LOAD 1-10 "loop-bg" LOOP`,
		},
		{
			name: "stop",
			cmd:  device.Command{Name: "stop", Params: map[string]any{"channel": 1, "layer": 10}},
			want: "STOP 1-10",
		},
		{
			name: "pause",
			cmd:  device.Command{Name: "pause", Params: map[string]any{"channel": 1}},
			want: "PAUSE 1-10",
		},
		{
			name: "resume",
			cmd:  device.Command{Name: "resume", Params: map[string]any{"channel": 1}},
			want: "RESUME 1-10",
		},
		{
			name: "clear whole channel",
			cmd:  device.Command{Name: "clear", Params: map[string]any{"channel": 1}},
			want: "CLEAR 1",
		},
		{
			name: "clear single layer",
			cmd:  device.Command{Name: "clear", Params: map[string]any{"channel": 1, "layer": 20}},
			want: "CLEAR 1-20",
		},
		{
			name: "call",
			cmd:  device.Command{Name: "call", Params: map[string]any{"channel": 1, "param": "SEEK 100"}},
			want: "CALL 1-10 SEEK 100",
		},
		{
			name: "swap",
			cmd: device.Command{Name: "swap", Params: map[string]any{
				"channel": 1, "layer": 10, "targetChannel": 2,
			}},
			want: "SWAP 1-10 2-10",
		},
		{
			name: "cg add",
			cmd: device.Command{Name: "cgAdd", Params: map[string]any{
				"channel": 1, "template": "lower-third", "playOnLoad": true,
				"data": map[string]any{"name": "Anna"},
			}},
			want: `CG 1-20 ADD 1 "lower-third" 1 "{\"name\":\"Anna\"}"`,
		},
		{
			name: "cg add without data",
			cmd:  device.Command{Name: "cgAdd", Params: map[string]any{"channel": 1, "template": "clock"}},
			want: `CG 1-20 ADD 1 "clock" 0`,
		},
		{
			name: "cg remove",
			cmd:  device.Command{Name: "cgRemove", Params: map[string]any{"channel": 1, "cgLayer": 2}},
			want: "CG 1-20 REMOVE 2",
		},
		{
			name: "info all",
			cmd:  device.Command{Name: "info"},
			want: "INFO",
		},
		{
			name: "info channel",
			cmd:  device.Command{Name: "info", Params: map[string]any{"channel": 2}},
			want: "INFO 2",
		},
		{
			name: "version",
			cmd:  device.Command{Name: "version"},
			want: "VERSION",
		},
	}

	c := NewCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, key, err := c.Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if key != "" {
				t.Errorf("key = %q, want empty under FIFO", key)
			}
			got := string(payload)
			if !strings.HasSuffix(got, "\r\n") {
				t.Fatalf("payload %q not CRLF terminated", got)
			}
			if got := strings.TrimSuffix(got, "\r\n"); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name string
		cmd  device.Command
	}{
		{"unknown command", device.Command{Name: "teleport"}},
		{"play without channel", device.Command{Name: "play", Params: map[string]any{"clip": "x"}}},
		{"play without clip", device.Command{Name: "play", Params: map[string]any{"channel": 1}}},
		{"play with empty clip", device.Command{Name: "play", Params: map[string]any{"channel": 1, "clip": ""}}},
		{"play with fractional channel", device.Command{Name: "play", Params: map[string]any{"channel": 1.5, "clip": "x"}}},
		{"play with string channel", device.Command{Name: "play", Params: map[string]any{"channel": "one", "clip": "x"}}},
		{"call without param", device.Command{Name: "call", Params: map[string]any{"channel": 1}}},
		{"swap without target", device.Command{Name: "swap", Params: map[string]any{"channel": 1}}},
		{"cg add without template", device.Command{Name: "cgAdd", Params: map[string]any{"channel": 1}}},
	}

	c := NewCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := c.Encode(tt.cmd); err == nil {
				t.Error("Encode() expected error, got nil")
			}
		})
	}
}
