package command

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/miras-broadcast/miras-core/internal/device"
	"github.com/miras-broadcast/miras-core/internal/project"
	"github.com/miras-broadcast/miras-core/internal/state"
)

// Result is the uniform outcome of one dispatched command. Failures are
// data, never panics or bare errors, so transports forward results to
// clients without translation.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the wire form of a failed command.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Dispatcher-level failure codes. Device-level codes pass through from
// OperationResult untouched.
const (
	codeUnknownCommand = "UnknownCommand"
	codeInvalidParams  = "InvalidParams"
	codeNotFound       = "NotFound"
	codeInternal       = "Internal"
)

// ParamSpec declares one parameter of a command.
type ParamSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Descriptor describes one command for clients.
type Descriptor struct {
	Name   string      `json:"name"`
	Params []ParamSpec `json:"params"`
}

// Logger is the optional structured logging interface for this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// handler executes one validated command.
type handler func(ctx context.Context, params map[string]any) Result

type commandDef struct {
	params []ParamSpec
	run    handler
}

// Dispatcher validates and routes named commands to the device registry,
// the project manager, and the state aggregator. The command table is
// static: it is built once at construction and never mutated.
type Dispatcher struct {
	registry   *device.Registry
	projects   *project.Manager
	aggregator *state.Aggregator
	logger     Logger
	table      map[string]commandDef
}

// NewDispatcher builds the dispatcher and its command table.
func NewDispatcher(registry *device.Registry, projects *project.Manager, aggregator *state.Aggregator, logger Logger) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		projects:   projects,
		aggregator: aggregator,
		logger:     logger,
	}
	d.table = map[string]commandDef{
		"playItem": {
			params: []ParamSpec{{Name: "itemId", Type: "string", Required: true}},
			run:    d.playItem,
		},
		"stopItem": {
			params: []ParamSpec{{Name: "itemId", Type: "string", Required: true}},
			run:    d.stopItem,
		},
		"connectDevice": {
			params: []ParamSpec{{Name: "deviceId", Type: "string", Required: true}},
			run:    d.connectDevice,
		},
		"disconnectDevice": {
			params: []ParamSpec{{Name: "deviceId", Type: "string", Required: true}},
			run:    d.disconnectDevice,
		},
		"loadProject": {
			params: []ParamSpec{{Name: "projectId", Type: "string", Required: true}},
			run:    d.loadProject,
		},
		"closeProject":   {run: d.closeProject},
		"getSystemState": {run: d.getSystemState},
		"listCommands":   {run: d.listCommands},
	}
	return d
}

// Dispatch validates the parameters against the command's schema and runs
// it. Unknown names and schema violations fail without side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, params map[string]any) Result {
	def, ok := d.table[name]
	if !ok {
		return failure(codeUnknownCommand, fmt.Sprintf("unknown command %q", name))
	}
	if err := validateParams(def.params, params); err != nil {
		return failure(codeInvalidParams, err.Error())
	}
	if params == nil {
		params = map[string]any{}
	}

	d.logDebug("dispatching command", "command", name)
	return def.run(ctx, params)
}

// Commands lists every command and its parameter schema, sorted by name.
func (d *Dispatcher) Commands() []Descriptor {
	out := make([]Descriptor, 0, len(d.table))
	for name, def := range d.table {
		out = append(out, Descriptor{Name: name, Params: def.params})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Dispatcher) playItem(ctx context.Context, params map[string]any) Result {
	return d.fireItem(ctx, params, "play")
}

func (d *Dispatcher) stopItem(ctx context.Context, params map[string]any) Result {
	return d.fireItem(ctx, params, "stop")
}

// fireItem resolves an item in the active project and executes the given
// device command against the item's channel-layer target.
func (d *Dispatcher) fireItem(ctx context.Context, params map[string]any, verb string) Result {
	itemID := params["itemId"].(string)
	item, err := d.projects.Item(itemID)
	if err != nil {
		return failureFromErr(err)
	}

	session, ok := d.registry.Get(item.DeviceID)
	if !ok {
		return failure(codeNotFound, fmt.Sprintf("device %q is not registered", item.DeviceID))
	}

	cmdParams := map[string]any{
		"channel": item.Channel,
		"layer":   item.Layer,
	}
	if verb == "play" {
		cmdParams["clip"] = item.Clip
		if item.Loop {
			cmdParams["loop"] = true
		}
		if item.Transition != "" {
			cmdParams["transition"] = item.Transition
		}
	}

	res := session.Execute(ctx, device.Command{Name: verb, Params: cmdParams})
	return fromOperation(res)
}

func (d *Dispatcher) connectDevice(ctx context.Context, params map[string]any) Result {
	deviceID := params["deviceId"].(string)
	session, ok := d.registry.Get(deviceID)
	if !ok {
		return failure(codeNotFound, fmt.Sprintf("device %q is not registered", deviceID))
	}
	if err := session.Connect(ctx); err != nil {
		return failureFromErr(err)
	}
	return Result{Success: true, Data: session.Snapshot()}
}

func (d *Dispatcher) disconnectDevice(_ context.Context, params map[string]any) Result {
	deviceID := params["deviceId"].(string)
	session, ok := d.registry.Get(deviceID)
	if !ok {
		return failure(codeNotFound, fmt.Sprintf("device %q is not registered", deviceID))
	}
	if err := session.Disconnect(); err != nil {
		return failureFromErr(err)
	}
	return Result{Success: true, Data: session.Snapshot()}
}

func (d *Dispatcher) loadProject(ctx context.Context, params map[string]any) Result {
	projectID := params["projectId"].(string)
	p, err := d.projects.Load(ctx, projectID)
	if err != nil {
		return failureFromErr(err)
	}
	return Result{Success: true, Data: p}
}

func (d *Dispatcher) closeProject(context.Context, map[string]any) Result {
	d.projects.Close()
	return Result{Success: true}
}

func (d *Dispatcher) getSystemState(context.Context, map[string]any) Result {
	return Result{Success: true, Data: d.aggregator.State()}
}

func (d *Dispatcher) listCommands(context.Context, map[string]any) Result {
	return Result{Success: true, Data: d.Commands()}
}

// validateParams checks required parameters and their declared types.
func validateParams(specs []ParamSpec, params map[string]any) error {
	for _, spec := range specs {
		v, ok := params[spec.Name]
		if !ok {
			if spec.Required {
				return fmt.Errorf("parameter %q is required", spec.Name)
			}
			continue
		}
		switch spec.Type {
		case "string":
			s, ok := v.(string)
			if !ok || s == "" {
				return fmt.Errorf("parameter %q must be a non-empty string", spec.Name)
			}
		case "number":
			switch v.(type) {
			case int, float64:
			default:
				return fmt.Errorf("parameter %q must be a number", spec.Name)
			}
		case "bool":
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("parameter %q must be a boolean", spec.Name)
			}
		}
	}
	return nil
}

// fromOperation folds a device OperationResult into a command Result,
// preserving the device error code.
func fromOperation(res device.OperationResult) Result {
	out := Result{Success: res.Success, Data: res}
	if res.Error != nil {
		out.Error = &Error{Code: res.Error.Code, Message: res.Error.Message}
	}
	return out
}

// failureFromErr maps well-known errors to stable codes.
func failureFromErr(err error) Result {
	var derr *device.Error
	switch {
	case errors.As(err, &derr):
		return failure(string(derr.Code), derr.Message)
	case errors.Is(err, project.ErrNotFound),
		errors.Is(err, project.ErrItemNotFound),
		errors.Is(err, project.ErrNoActiveProject):
		return failure(codeNotFound, err.Error())
	default:
		return failure(codeInternal, err.Error())
	}
}

func failure(code, message string) Result {
	return Result{Success: false, Error: &Error{Code: code, Message: message}}
}

func (d *Dispatcher) logDebug(msg string, kv ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, kv...)
	}
}
