package plugin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/go-plugin"
)

// Handshake is the plugin handshake config
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ROSTERD_PLUGIN",
	MagicCookieValue: "dynamic-roster",
}

// PluginName is the name DynamicRoster is dispensed under
const PluginName = "dynamic"

// PluginMap is the plugin type map used by hosts
var PluginMap = map[string]plugin.Plugin{
	PluginName: &GRPCPlugin{},
}

// Serve runs impl as a plugin process. It does not return.
func Serve(impl DynamicRoster) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &GRPCPlugin{Impl: impl},
		},
		GRPCServer: plugin.DefaultGRPCServer,
	})
}

// LoadedPlugin represents a running plugin process
type LoadedPlugin struct {
	Path     string
	Metadata Metadata
	Roster   DynamicRoster
	client   *plugin.Client
}

// Host manages plugin processes
type Host struct {
	mu        sync.RWMutex
	plugins   map[string]*LoadedPlugin
	pluginDir string
	logf      func(format string, args ...interface{})
}

// NewHost creates a new plugin host. logf may be nil.
func NewHost(pluginDir string, logf func(format string, args ...interface{})) *Host {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Host{
		plugins:   make(map[string]*LoadedPlugin),
		pluginDir: pluginDir,
		logf:      logf,
	}
}

// LoadAll loads every executable in the plugin directory. Plugins that fail
// to start are logged and skipped.
func (h *Host) LoadAll(ctx context.Context) error {
	if h.pluginDir == "" {
		return nil
	}

	entries, err := os.ReadDir(h.pluginDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(h.pluginDir, entry.Name())
		if _, err := h.Load(ctx, path); err != nil {
			h.logf("failed to load plugin %s: %v", entry.Name(), err)
		}
	}

	return nil
}

// Load starts a single plugin binary
func (h *Host) Load(ctx context.Context, path string) (*LoadedPlugin, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap,
		Cmd:             exec.Command(path),
		AllowedProtocols: []plugin.Protocol{
			plugin.ProtocolGRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	lp, err := h.add(ctx, path, raw.(DynamicRoster))
	if err != nil {
		client.Kill()
		return nil, err
	}
	lp.client = client
	return lp, nil
}

// Attach registers an already connected DynamicRoster
func (h *Host) Attach(ctx context.Context, name string, r DynamicRoster) (*LoadedPlugin, error) {
	return h.add(ctx, name, r)
}

func (h *Host) add(ctx context.Context, path string, r DynamicRoster) (*LoadedPlugin, error) {
	md, err := r.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin metadata: %w", err)
	}
	if md.Name == "" {
		md.Name = filepath.Base(path)
	}

	lp := &LoadedPlugin{Path: path, Metadata: md, Roster: r}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.plugins[md.Name]; ok {
		return nil, fmt.Errorf("plugin already loaded: %s", md.Name)
	}
	h.plugins[md.Name] = lp
	h.logf("loaded plugin %s %s", md.Name, md.Version)
	return lp, nil
}

// Unload stops a plugin
func (h *Host) Unload(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lp := h.plugins[name]
	if lp == nil {
		return
	}
	if lp.client != nil {
		lp.client.Kill()
	}
	delete(h.plugins, name)
}

// UnloadAll stops all plugins
func (h *Host) UnloadAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name, lp := range h.plugins {
		if lp.client != nil {
			lp.client.Kill()
		}
		delete(h.plugins, name)
	}
}

// List returns all loaded plugins sorted by name
func (h *Host) List() []*LoadedPlugin {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]*LoadedPlugin, 0, len(h.plugins))
	for _, lp := range h.plugins {
		result = append(result, lp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Metadata.Name < result[j].Metadata.Name })
	return result
}

// Get returns a specific plugin
func (h *Host) Get(name string) *LoadedPlugin {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.plugins[name]
}
