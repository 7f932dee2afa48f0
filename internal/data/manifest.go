package data

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/ticworld/kernel/internal/scripting"
	"gopkg.in/yaml.v3"
)

//go:embed schema/manifest.schema.json
var manifestSchemaJSON string

const manifestSchemaURL = "https://ticworld.dev/schema/manifest.json"

var manifestSchema = jsonschema.MustCompileString(manifestSchemaURL, manifestSchemaJSON)

// ScriptEntry is one script of a manifest. Exactly one of Source and File
// is set; File is relative to the manifest.
type ScriptEntry struct {
	Kind     string `yaml:"kind"`
	ID       string `yaml:"id"`
	Channel  string `yaml:"channel"`
	Hook     string `yaml:"hook"`
	Priority int    `yaml:"priority"`
	Source   string `yaml:"source"`
	File     string `yaml:"file"`
}

// Manifest lists the scripts to register on a world, in order.
type Manifest struct {
	Policies struct {
		Command string `yaml:"command"`
		Event   string `yaml:"event"`
		Hook    string `yaml:"hook"`
	} `yaml:"policies"`
	Scripts []ScriptEntry `yaml:"scripts"`
}

// LoadManifest reads and validates a YAML manifest and inlines every
// referenced script file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range m.Scripts {
		e := &m.Scripts[i]
		if e.File == "" {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, e.File))
		if err != nil {
			return nil, fmt.Errorf("manifest %s: script %s: %w", path, e.ID, err)
		}
		e.Source = string(src)
	}
	return m, nil
}

// ParseManifest validates raw against the manifest schema and decodes it.
// File references are left unresolved.
func ParseManifest(raw []byte) (*Manifest, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// The validator wants JSON shaped values.
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := manifestSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Apply sets the failure policies and registers every script on rt in
// manifest order. It stops at the first registration error.
func (m *Manifest) Apply(rt *scripting.Runtime) error {
	for _, p := range []struct {
		name string
		set  func(scripting.Policy)
	}{
		{m.Policies.Command, rt.SetCommandFailurePolicy},
		{m.Policies.Event, rt.SetEventFailurePolicy},
		{m.Policies.Hook, rt.SetHookFailurePolicy},
	} {
		if p.name == "" {
			continue
		}
		pol, err := scripting.ParsePolicy(p.name)
		if err != nil {
			return err
		}
		p.set(pol)
	}

	for _, e := range m.Scripts {
		reg := scripting.Registration{ID: e.ID, Source: e.Source, Priority: e.Priority, Channel: e.Channel, Hook: e.Hook}
		var err error
		switch e.Kind {
		case "command":
			err = rt.RegisterCommandScript(reg)
		case "event":
			err = rt.RegisterEventScript(reg)
		case "hook":
			err = rt.RegisterHookScript(reg)
		default:
			err = fmt.Errorf("script %s: unknown kind %q", e.ID, e.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
