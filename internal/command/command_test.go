package command

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miras-broadcast/miras-core/internal/device"
	"github.com/miras-broadcast/miras-core/internal/infrastructure/database"
	"github.com/miras-broadcast/miras-core/internal/project"
	"github.com/miras-broadcast/miras-core/internal/state"
	_ "github.com/miras-broadcast/miras-core/migrations"
)

// autoTransport answers every Send with a canned response so dispatch
// tests run synchronously.
type autoTransport struct {
	mu      sync.Mutex
	open    bool
	sent    []string
	respond string
	onData  func([]byte)
	onClose func(error)
}

func (t *autoTransport) Open(context.Context) error {
	t.mu.Lock()
	t.open = true
	t.mu.Unlock()
	return nil
}

func (t *autoTransport) Close() error {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
	return nil
}

func (t *autoTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *autoTransport) Send(data []byte) error {
	t.mu.Lock()
	t.sent = append(t.sent, string(data))
	respond := t.respond
	fn := t.onData
	t.mu.Unlock()
	if respond != "" && fn != nil {
		go fn([]byte(respond))
	}
	return nil
}

func (t *autoTransport) SetOnData(fn func([]byte)) { t.onData = fn }
func (t *autoTransport) SetOnClose(fn func(error)) { t.onClose = fn }

func (t *autoTransport) sentLines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

// lineCodec is a minimal FIFO codec: "OK ..." succeeds, "ERR ..." fails,
// and Encode upper-cases the command verb.
type lineCodec struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *lineCodec) Feed(data []byte) []device.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(data)
	var msgs []device.Message
	for {
		raw := c.buf.String()
		idx := strings.IndexByte(raw, '\n')
		if idx < 0 {
			return msgs
		}
		line := strings.TrimSpace(raw[:idx])
		c.buf.Next(idx + 1)
		msg := device.Message{Class: device.ClassResponse, Raw: line}
		if strings.HasPrefix(line, "OK") {
			msg.Success = true
		} else {
			msg.Data = strings.TrimPrefix(line, "ERR ")
		}
		msgs = append(msgs, msg)
	}
}

func (c *lineCodec) Encode(cmd device.Command) ([]byte, string, error) {
	switch cmd.Name {
	case "play", "stop":
		return []byte(strings.ToUpper(cmd.Name) + "\n"), "", nil
	default:
		return nil, "", fmt.Errorf("unknown command %q", cmd.Name)
	}
}

func (c *lineCodec) Correlation() device.CorrelationMode { return device.CorrelateFIFO }

func (c *lineCodec) Reset() {}

func (c *lineCodec) Commands() []string { return []string{"play", "stop"} }

type testEnv struct {
	dispatcher *Dispatcher
	registry   *device.Registry
	projects   *project.Manager
	aggregator *state.Aggregator
	transports map[string]*autoTransport
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		aggregator: state.New(),
		transports: make(map[string]*autoTransport),
	}
	env.registry = device.NewRegistry(device.RegistryOptions{DisconnectTimeout: time.Second})
	env.registry.Subscribe(env.aggregator.HandleEvent)
	env.registry.RegisterFamily("caspar", func(cfg device.Config, opts device.SessionOptions) (*device.Session, error) {
		tr := &autoTransport{respond: "OK 202\n"}
		env.transports[cfg.ID] = tr
		return device.NewSession(cfg, tr, &lineCodec{}, opts), nil
	})

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	env.projects = project.NewManager(project.NewRepository(db), env.aggregator, nil)
	env.dispatcher = NewDispatcher(env.registry, env.projects, env.aggregator, nil)
	return env
}

// registerDevice adds a connected caspar device.
func (env *testEnv) registerDevice(t *testing.T, id string) *device.Session {
	t.Helper()
	session, err := env.registry.Register(device.Config{
		ID: id, Name: id, Family: "caspar", Host: "127.0.0.1", Port: 5250,
		CommandTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", id, err)
	}
	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect(%s) error = %v", id, err)
	}
	return session
}

// seedAndLoadProject stores a one-event project and loads it.
func (env *testEnv) seedAndLoadProject(t *testing.T) *project.Project {
	t.Helper()
	ctx := context.Background()
	p, err := env.projects.Create(ctx, "show")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	p.Events = []project.Event{{Name: "Opening", Items: []project.Item{
		{DeviceID: "caspar-main", Channel: 1, Layer: 10, Clip: "intro"},
	}}}
	if err := env.projects.Save(ctx, p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := env.projects.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return loaded
}

func TestDispatch_UnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	res := env.dispatcher.Dispatch(context.Background(), "teleport", nil)
	if res.Success {
		t.Fatal("unknown command reported success")
	}
	if res.Error.Code != codeUnknownCommand {
		t.Errorf("Code = %q, want %q", res.Error.Code, codeUnknownCommand)
	}
}

func TestDispatch_ParamValidation(t *testing.T) {
	tests := []struct {
		name    string
		command string
		params  map[string]any
	}{
		{"missing itemId", "playItem", nil},
		{"empty itemId", "playItem", map[string]any{"itemId": ""}},
		{"wrong type itemId", "playItem", map[string]any{"itemId": 42}},
		{"missing deviceId", "connectDevice", map[string]any{}},
		{"missing projectId", "loadProject", map[string]any{"name": "x"}},
	}
	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.dispatcher.Dispatch(context.Background(), tt.command, tt.params)
			if res.Success {
				t.Fatal("invalid params reported success")
			}
			if res.Error.Code != codeInvalidParams {
				t.Errorf("Code = %q, want %q", res.Error.Code, codeInvalidParams)
			}
		})
	}
}

func TestDispatch_ListCommands(t *testing.T) {
	env := newTestEnv(t)
	res := env.dispatcher.Dispatch(context.Background(), "listCommands", nil)
	if !res.Success {
		t.Fatalf("listCommands failed: %+v", res.Error)
	}
	descriptors := res.Data.([]Descriptor)
	want := []string{
		"closeProject", "connectDevice", "disconnectDevice", "getSystemState",
		"listCommands", "loadProject", "playItem", "stopItem",
	}
	if len(descriptors) != len(want) {
		t.Fatalf("len(descriptors) = %d, want %d", len(descriptors), len(want))
	}
	for i, name := range want {
		if descriptors[i].Name != name {
			t.Errorf("descriptors[%d].Name = %q, want %q", i, descriptors[i].Name, name)
		}
	}
}

func TestDispatch_GetSystemState(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "caspar-main")

	res := env.dispatcher.Dispatch(context.Background(), "getSystemState", nil)
	if !res.Success {
		t.Fatalf("getSystemState failed: %+v", res.Error)
	}
	st := res.Data.(state.SystemState)
	if _, ok := st.Devices["caspar-main"]; !ok {
		t.Errorf("system state devices = %v, want caspar-main", st.Devices)
	}
}

func TestDispatch_ConnectAndDisconnectDevice(t *testing.T) {
	env := newTestEnv(t)
	session, err := env.registry.Register(device.Config{
		ID: "caspar-main", Family: "caspar", Host: "127.0.0.1", Port: 5250,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res := env.dispatcher.Dispatch(context.Background(), "connectDevice",
		map[string]any{"deviceId": "caspar-main"})
	if !res.Success {
		t.Fatalf("connectDevice failed: %+v", res.Error)
	}
	if session.Status() != device.StatusConnected {
		t.Errorf("Status() = %s, want connected", session.Status())
	}

	res = env.dispatcher.Dispatch(context.Background(), "disconnectDevice",
		map[string]any{"deviceId": "caspar-main"})
	if !res.Success {
		t.Fatalf("disconnectDevice failed: %+v", res.Error)
	}
	if session.Status() != device.StatusDisconnected {
		t.Errorf("Status() = %s, want disconnected", session.Status())
	}

	res = env.dispatcher.Dispatch(context.Background(), "connectDevice",
		map[string]any{"deviceId": "ghost"})
	if res.Success || res.Error.Code != codeNotFound {
		t.Errorf("connectDevice(ghost) = %+v, want NotFound", res)
	}
}

func TestDispatch_PlayItem(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "caspar-main")
	p := env.seedAndLoadProject(t)
	itemID := p.Events[0].Items[0].ID

	res := env.dispatcher.Dispatch(context.Background(), "playItem",
		map[string]any{"itemId": itemID})
	if !res.Success {
		t.Fatalf("playItem failed: %+v", res.Error)
	}
	op := res.Data.(device.OperationResult)
	if op.DeviceID != "caspar-main" || op.OperationID == "" {
		t.Errorf("operation result = %+v", op)
	}

	sent := env.transports["caspar-main"].sentLines()
	if len(sent) != 1 || sent[0] != "PLAY\n" {
		t.Errorf("device received %v, want [PLAY\\n]", sent)
	}
}

func TestDispatch_StopItem(t *testing.T) {
	env := newTestEnv(t)
	env.registerDevice(t, "caspar-main")
	p := env.seedAndLoadProject(t)
	itemID := p.Events[0].Items[0].ID

	res := env.dispatcher.Dispatch(context.Background(), "stopItem",
		map[string]any{"itemId": itemID})
	if !res.Success {
		t.Fatalf("stopItem failed: %+v", res.Error)
	}
	sent := env.transports["caspar-main"].sentLines()
	if len(sent) != 1 || sent[0] != "STOP\n" {
		t.Errorf("device received %v, want [STOP\\n]", sent)
	}
}

func TestDispatch_PlayItemFailures(t *testing.T) {
	t.Run("no active project", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.dispatcher.Dispatch(context.Background(), "playItem",
			map[string]any{"itemId": "any"})
		if res.Success || res.Error.Code != codeNotFound {
			t.Errorf("result = %+v, want NotFound", res)
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		env := newTestEnv(t)
		env.registerDevice(t, "caspar-main")
		env.seedAndLoadProject(t)
		res := env.dispatcher.Dispatch(context.Background(), "playItem",
			map[string]any{"itemId": "missing"})
		if res.Success || res.Error.Code != codeNotFound {
			t.Errorf("result = %+v, want NotFound", res)
		}
	})

	t.Run("unregistered device", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.seedAndLoadProject(t)
		res := env.dispatcher.Dispatch(context.Background(), "playItem",
			map[string]any{"itemId": p.Events[0].Items[0].ID})
		if res.Success || res.Error.Code != codeNotFound {
			t.Errorf("result = %+v, want NotFound", res)
		}
	})

	t.Run("device not connected", func(t *testing.T) {
		env := newTestEnv(t)
		session := env.registerDevice(t, "caspar-main")
		_ = session.Disconnect()
		p := env.seedAndLoadProject(t)
		res := env.dispatcher.Dispatch(context.Background(), "playItem",
			map[string]any{"itemId": p.Events[0].Items[0].ID})
		if res.Success || res.Error.Code != string(device.CodeNotConnected) {
			t.Errorf("result = %+v, want NotConnected", res)
		}
	})
}

func TestDispatch_LoadAndCloseProject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p, err := env.projects.Create(ctx, "show")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res := env.dispatcher.Dispatch(ctx, "loadProject", map[string]any{"projectId": p.ID})
	if !res.Success {
		t.Fatalf("loadProject failed: %+v", res.Error)
	}
	if got := env.aggregator.State().ActiveProject; got == nil || *got != p.ID {
		t.Errorf("ActiveProject = %v, want %q", got, p.ID)
	}

	res = env.dispatcher.Dispatch(ctx, "loadProject", map[string]any{"projectId": "ghost"})
	if res.Success || res.Error.Code != codeNotFound {
		t.Errorf("loadProject(ghost) = %+v, want NotFound", res)
	}

	res = env.dispatcher.Dispatch(ctx, "closeProject", nil)
	if !res.Success {
		t.Fatalf("closeProject failed: %+v", res.Error)
	}
	if env.aggregator.State().ActiveProject != nil {
		t.Error("ActiveProject non-nil after closeProject")
	}
}
