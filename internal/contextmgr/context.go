// Package contextmgr owns per-tenant lifecycles: each tenant gets its own
// database, vector collections, and memory engine, created lazily on first
// use and evicted after a stretch of inactivity.
package contextmgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mnemod/internal/community"
	"mnemod/internal/config"
	"mnemod/internal/entity"
	"mnemod/internal/logging"
	"mnemod/internal/memory"
	"mnemod/internal/store"
	"mnemod/internal/vector"
)

// DefaultProfile is the profile used when a tenant never switches.
const DefaultProfile = "default"

// UserContext bundles one tenant's live resources.
type UserContext struct {
	Tenant      string
	Store       *store.Store
	Memories    *memory.Manager
	Entities    *entity.Manager
	Communities *community.Manager

	mu         sync.Mutex
	profile    string
	lastActive time.Time
	holds      int
}

// Profile returns the tenant's current profile.
func (u *UserContext) Profile() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.profile
}

// SwitchProfile changes the active profile. Profiles are created implicitly
// on first write; switching to a new name is always valid.
func (u *UserContext) SwitchProfile(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.profile = name
	logging.Context("tenant %s switched to profile %s", u.Tenant, name)
	return nil
}

// touch records activity.
func (u *UserContext) touch() {
	u.mu.Lock()
	u.lastActive = time.Now()
	u.mu.Unlock()
}

// LastActive returns the tenant's last activity time.
func (u *UserContext) LastActive() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastActive
}

// Hold pins the context against eviction until the release func is called.
// A dream session holds its tenant so the sweep cannot close the database
// under it.
func (u *UserContext) Hold() func() {
	u.mu.Lock()
	u.holds++
	u.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			u.mu.Lock()
			u.holds--
			u.mu.Unlock()
		})
	}
}

func (u *UserContext) held() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.holds > 0
}

// Manager creates, caches, and evicts tenant contexts.
type Manager struct {
	cfg      *config.Config
	engine   vector.Engine
	resolver *entity.ResolverCache

	mu       sync.Mutex
	contexts map[string]*UserContext

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// NewManager creates the context manager. engine may be nil when embeddings
// are disabled.
func NewManager(cfg *config.Config, engine vector.Engine) *Manager {
	return &Manager{
		cfg:      cfg,
		engine:   engine,
		resolver: entity.NewResolverCache(),
		contexts: make(map[string]*UserContext),
	}
}

// Get returns the tenant's context, creating it on first use. Every call
// counts as activity for TTL purposes.
func (m *Manager) Get(ctx context.Context, tenant string) (*UserContext, error) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return nil, fmt.Errorf("tenant id cannot be empty")
	}
	if strings.ContainsAny(tenant, `/\.`) {
		return nil, fmt.Errorf("tenant id %q contains path characters", tenant)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if uc, ok := m.contexts[tenant]; ok {
		uc.touch()
		return uc, nil
	}

	uc, err := m.open(ctx, tenant)
	if err != nil {
		return nil, err
	}
	m.contexts[tenant] = uc
	return uc, nil
}

// open builds a tenant context from scratch.
func (m *Manager) open(ctx context.Context, tenant string) (*UserContext, error) {
	dir := filepath.Join(m.cfg.Storage.RootDir, tenant)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tenant dir: %w", err)
	}

	st, err := store.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		return nil, err
	}
	if m.cfg.Storage.RequireVectorExt && !st.HasVectorExt() {
		st.Close()
		return nil, fmt.Errorf("sqlite-vec extension required but unavailable")
	}

	index, err := vector.NewPersistentIndex(filepath.Join(dir, "vectors"))
	if err != nil {
		st.Close()
		return nil, err
	}

	entities := entity.NewManager(st, entity.NewResolver(st, tenant, m.resolver))
	memories := memory.NewManager(st, m.engine, index, entities, m.cfg.Recall, m.cfg.GetRecallCacheTTL())
	partitioner := community.NewLabelPropagation()
	partitioner.Resolution = m.cfg.Dream.CommunityResolution
	partitioner.MinCommunitySize = m.cfg.Dream.CommunityMinSize
	communities := community.NewManager(st, partitioner, m.cfg.GetCommunityStaleness())

	uc := &UserContext{
		Tenant:      tenant,
		Store:       st,
		Memories:    memories,
		Entities:    entities,
		Communities: communities,
		profile:     DefaultProfile,
		lastActive:  time.Now(),
	}
	logging.Context("opened context for tenant %s at %s", tenant, dir)
	logging.RecordAudit(logging.AuditEvent{
		Event: logging.AuditContextOpen, Target: tenant, Success: true,
	})
	return uc, nil
}

// RenameProfile renames a profile across every table in the tenant's store
// and drops caches that may hold the old name.
func (m *Manager) RenameProfile(ctx context.Context, tenant, from, to string) error {
	uc, err := m.Get(ctx, tenant)
	if err != nil {
		return err
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if err := uc.Store.RenameProfile(ctx, from, to); err != nil {
		return err
	}
	m.resolver.Clear(tenant)
	if uc.Profile() == from {
		uc.SwitchProfile(to)
	}
	logging.Context("tenant %s renamed profile %s to %s", tenant, from, to)
	return nil
}

// MostRecent returns the most recently active tenant context, or nil when
// none are loaded. The dream scheduler consolidates this tenant first.
func (m *Manager) MostRecent() *UserContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *UserContext
	for _, uc := range m.contexts {
		if best == nil || uc.LastActive().After(best.LastActive()) {
			best = uc
		}
	}
	return best
}

// Loaded returns the number of live tenant contexts.
func (m *Manager) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

// StartSweeper launches the TTL eviction loop.
func (m *Manager) StartSweeper(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweepCancel != nil {
		return
	}
	sctx, cancel := context.WithCancel(ctx)
	m.sweepCancel = cancel
	m.sweepDone = make(chan struct{})
	go m.sweep(sctx)
}

// StopSweeper halts the eviction loop and closes every context.
func (m *Manager) StopSweeper() {
	m.mu.Lock()
	cancel := m.sweepCancel
	done := m.sweepDone
	m.sweepCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	m.CloseAll()
}

func (m *Manager) sweep(ctx context.Context) {
	defer close(m.sweepDone)
	ticker := time.NewTicker(m.cfg.GetSweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// evictIdle closes contexts idle past the TTL, skipping held ones.
func (m *Manager) evictIdle() {
	ttl := m.cfg.GetContextTTL()
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for tenant, uc := range m.contexts {
		if uc.held() || uc.LastActive().After(cutoff) {
			continue
		}
		if err := uc.Store.Close(); err != nil {
			logging.Context("error closing store for %s: %v", tenant, err)
		}
		m.resolver.Clear(tenant)
		delete(m.contexts, tenant)
		logging.Context("evicted idle tenant %s", tenant)
		logging.RecordAudit(logging.AuditEvent{
			Event: logging.AuditContextEvict, Target: tenant, Success: true,
		})
	}
}

// CloseAll closes every loaded context regardless of holds. Shutdown only.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tenant, uc := range m.contexts {
		if err := uc.Store.Close(); err != nil {
			logging.Context("error closing store for %s: %v", tenant, err)
		}
		delete(m.contexts, tenant)
	}
	m.resolver.ClearAll()
}
