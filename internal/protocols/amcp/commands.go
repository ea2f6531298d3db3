package amcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// commandSpec builds the wire form of one AMCP command from validated
// parameters.
type commandSpec struct {
	build func(p map[string]any) (string, error)
}

// commandTable maps command names to their wire builders. This table is
// the single source of truth for what the family supports; the registry
// and API surfaces enumerate it rather than hardcoding names.
var commandTable = map[string]commandSpec{
	"play":     {build: buildPlay},
	"load":     {build: buildLoad},
	"stop":     {build: layerCommand("STOP", defaultLayer)},
	"pause":    {build: layerCommand("PAUSE", defaultLayer)},
	"resume":   {build: layerCommand("RESUME", defaultLayer)},
	"clear":    {build: buildClear},
	"call":     {build: buildCall},
	"swap":     {build: buildSwap},
	"cgAdd":    {build: buildCGAdd},
	"cgRemove": {build: buildCGRemove},
	"info":     {build: buildInfo},
	"version":  {build: func(map[string]any) (string, error) { return "VERSION", nil }},
}

const (
	defaultLayer   = 10
	defaultCGLayer = 20
)

func commandNames() []string {
	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildPlay(p map[string]any) (string, error) {
	target, err := channelLayer(p, defaultLayer)
	if err != nil {
		return "", err
	}
	clip, err := requireString(p, "clip")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("PLAY " + target + " " + quote(clip))
	if optBool(p, "loop") {
		b.WriteString(" LOOP")
	}
	if tr := optString(p, "transition", ""); tr != "" {
		b.WriteString(" " + tr)
	}
	return b.String(), nil
}

func buildLoad(p map[string]any) (string, error) {
	target, err := channelLayer(p, defaultLayer)
	if err != nil {
		return "", err
	}
	clip, err := requireString(p, "clip")
	if err != nil {
		return "", err
	}

	wire := "LOAD " + target + " " + quote(clip)
	if optBool(p, "loop") {
		wire += " LOOP"
	}
	return wire, nil
}

// layerCommand covers the commands whose wire form is just the verb and a
// channel-layer target.
func layerCommand(verb string, layerDefault int) func(map[string]any) (string, error) {
	return func(p map[string]any) (string, error) {
		target, err := channelLayer(p, layerDefault)
		if err != nil {
			return "", err
		}
		return verb + " " + target, nil
	}
}

func buildClear(p map[string]any) (string, error) {
	channel, err := requireInt(p, "channel")
	if err != nil {
		return "", err
	}
	// Without a layer, CLEAR wipes the whole channel.
	if _, ok := p["layer"]; !ok {
		return "CLEAR " + strconv.Itoa(channel), nil
	}
	layer, err := optInt(p, "layer", defaultLayer)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CLEAR %d-%d", channel, layer), nil
}

func buildCall(p map[string]any) (string, error) {
	target, err := channelLayer(p, defaultLayer)
	if err != nil {
		return "", err
	}
	param, err := requireString(p, "param")
	if err != nil {
		return "", err
	}
	return "CALL " + target + " " + param, nil
}

func buildSwap(p map[string]any) (string, error) {
	source, err := channelLayer(p, defaultLayer)
	if err != nil {
		return "", err
	}
	targetChannel, err := requireInt(p, "targetChannel")
	if err != nil {
		return "", err
	}
	targetLayer, err := optInt(p, "targetLayer", defaultLayer)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SWAP %s %d-%d", source, targetChannel, targetLayer), nil
}

func buildCGAdd(p map[string]any) (string, error) {
	target, err := channelLayer(p, defaultCGLayer)
	if err != nil {
		return "", err
	}
	template, err := requireString(p, "template")
	if err != nil {
		return "", err
	}
	cgLayer, err := optInt(p, "cgLayer", 1)
	if err != nil {
		return "", err
	}

	playOnLoad := "0"
	if optBool(p, "playOnLoad") {
		playOnLoad = "1"
	}

	wire := fmt.Sprintf("CG %s ADD %d %s %s", target, cgLayer, quote(template), playOnLoad)
	if data, ok := p["data"]; ok {
		encoded, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("encoding template data: %w", err)
		}
		wire += " " + quote(string(encoded))
	}
	return wire, nil
}

func buildCGRemove(p map[string]any) (string, error) {
	target, err := channelLayer(p, defaultCGLayer)
	if err != nil {
		return "", err
	}
	cgLayer, err := optInt(p, "cgLayer", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CG %s REMOVE %d", target, cgLayer), nil
}

func buildInfo(p map[string]any) (string, error) {
	if _, ok := p["channel"]; !ok {
		return "INFO", nil
	}
	channel, err := requireInt(p, "channel")
	if err != nil {
		return "", err
	}
	return "INFO " + strconv.Itoa(channel), nil
}

// channelLayer formats the "<channel>-<layer>" target shared by most
// commands.
func channelLayer(p map[string]any, layerDefault int) (string, error) {
	channel, err := requireInt(p, "channel")
	if err != nil {
		return "", err
	}
	layer, err := optInt(p, "layer", layerDefault)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%d", channel, layer), nil
}

// quote wraps a value in AMCP double quotes, escaping embedded quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func requireString(p map[string]any, key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("parameter %q is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func optString(p map[string]any, key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// requireInt accepts int and float64 so parameters survive a JSON round
// trip, where all numbers decode as float64.
func requireInt(p map[string]any, key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("parameter %q is required", key)
	}
	return asInt(key, v)
}

func optInt(p map[string]any, key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	return asInt(key, v)
}

func asInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("parameter %q must be a whole number", key)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number", key)
	}
}

func optBool(p map[string]any, key string) bool {
	v, _ := p[key].(bool)
	return v
}
