package otg

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bc-dunia/otgmcp/internal/config"
	"github.com/bc-dunia/otgmcp/internal/schema"
)

// Pool hands out one Client per configured target and remembers which
// schema version each target resolved to. Resolution queries the target
// once; later lookups are served from the cache until Invalidate.
type Pool struct {
	cfg   *config.Config
	store *schema.Store

	mu       sync.Mutex
	clients  map[string]*Client
	resolved map[string]schema.Version
}

// NewPool builds a pool over the configured targets. The schema store
// supplies the catalog used for version resolution.
func NewPool(cfg *config.Config, store *schema.Store) *Pool {
	return &Pool{
		cfg:      cfg,
		store:    store,
		clients:  make(map[string]*Client),
		resolved: make(map[string]schema.Version),
	}
}

// Get returns the client for a configured target, building it on first
// use. Unknown targets are an error; tools must not invent targets.
func (p *Pool) Get(target string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[target]; ok {
		return client, nil
	}

	targetCfg, ok := p.cfg.Targets[target]
	if !ok {
		return nil, fmt.Errorf("unknown target %q, configured targets: %v", target, p.cfg.TargetNames())
	}

	client := NewClient(ClientConfig{
		Target:        target,
		SkipTLSVerify: targetCfg.SkipTLSVerify,
		Timeouts:      DefaultTimeoutConfig(),
	})
	p.clients[target] = client
	return client, nil
}

// ResolvedVersion returns the catalog version serving this target,
// querying the target's reported version on first call.
func (p *Pool) ResolvedVersion(ctx context.Context, target string) (schema.Version, error) {
	p.mu.Lock()
	if v, ok := p.resolved[target]; ok {
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	client, err := p.Get(target)
	if err != nil {
		return schema.Version{}, err
	}
	info, err := client.GetVersion(ctx)
	if err != nil {
		return schema.Version{}, err
	}

	catalog := p.store.Catalog()
	v := schema.ResolveString(info.SDKVersion, catalog)
	zap.L().Info("resolved target schema version",
		zap.String("target", target),
		zap.String("reported", info.SDKVersion),
		zap.String("resolved", v.String()))

	p.mu.Lock()
	p.resolved[target] = v
	p.mu.Unlock()
	return v, nil
}

// Invalidate drops the cached resolution for a target, forcing the next
// ResolvedVersion call to query it again. Used after catalog reloads
// and target restarts.
func (p *Pool) Invalidate(target string) {
	p.mu.Lock()
	delete(p.resolved, target)
	p.mu.Unlock()
}

// InvalidateAll drops every cached resolution.
func (p *Pool) InvalidateAll() {
	p.mu.Lock()
	p.resolved = make(map[string]schema.Version)
	p.mu.Unlock()
}

// Targets returns the configured target names.
func (p *Pool) Targets() []string {
	return p.cfg.TargetNames()
}

// PortsFor returns the port configuration for a target.
func (p *Pool) PortsFor(target string) (map[string]config.PortConfig, error) {
	targetCfg, ok := p.cfg.Targets[target]
	if !ok {
		return nil, fmt.Errorf("unknown target %q", target)
	}
	return targetCfg.Ports, nil
}

// CaptureDir returns where capture files are written.
func (p *Pool) CaptureDir() string {
	return p.cfg.CaptureDir
}
