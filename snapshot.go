package accessguard

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/accessguard/logger"
)

// ScopeAll addresses every subscriber regardless of the model they
// registered for.
const ScopeAll = "*"

// SignedSnapshot is an exported rule configuration together with an
// ed25519 signature over its JSON payload. Downstream consumers (edge
// caches, sibling deployments) verify the signature before applying it.
type SignedSnapshot struct {
	Scope     string         `json:"scope"`
	Payload   []byte         `json:"payload"`
	Signature string         `json:"signature"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Config decodes the snapshot payload.
func (s *SignedSnapshot) Config() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(s.Payload, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// VerifySnapshot checks the payload signature with the given public key.
func VerifySnapshot(pub ed25519.PublicKey, s *SignedSnapshot) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(s.Signature)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, s.Payload, sig), nil
}

type SnapshotSubscriber interface {
	OnSnapshot(ctx context.Context, scope string, pub ed25519.PublicKey, snap *SignedSnapshot) error
}

type SnapshotSubscriberFunc func(ctx context.Context, scope string, pub ed25519.PublicKey, snap *SignedSnapshot) error

func (f SnapshotSubscriberFunc) OnSnapshot(ctx context.Context, scope string, pub ed25519.PublicKey, snap *SignedSnapshot) error {
	return f(ctx, scope, pub, snap)
}

// SnapshotDistributor exports the current rule configuration as signed
// snapshots and fans them out to registered subscribers whenever a rule
// mutation is reported. Snapshots are scoped: a subscriber registered
// for a model receives only that model's sub-rules, while rule sets and
// groups are always included because they are global.
type SnapshotDistributor struct {
	ruleSets RuleSetStore
	subRules SubRuleStore
	groups   GroupStore

	pub              ed25519.PublicKey
	priv             ed25519.PrivateKey
	rotationInterval time.Duration
	notifyCh         chan string
	stopCh           chan struct{}
	subscribers      map[string][]SnapshotSubscriber
	log              logger.Logger
	mu               sync.RWMutex
	started          bool
	wg               sync.WaitGroup
}

type SnapshotDistributorOption func(*SnapshotDistributor)

// WithSnapshotSigningKey installs a caller-managed signing key instead
// of the generated one.
func WithSnapshotSigningKey(priv ed25519.PrivateKey) SnapshotDistributorOption {
	return func(d *SnapshotDistributor) {
		if priv != nil && len(priv) == ed25519.PrivateKeySize {
			d.priv = append(ed25519.PrivateKey{}, priv...)
			d.pub = priv.Public().(ed25519.PublicKey)
		}
	}
}

// WithSnapshotRotationInterval overrides the signing key rotation period.
func WithSnapshotRotationInterval(interval time.Duration) SnapshotDistributorOption {
	return func(d *SnapshotDistributor) {
		if interval > 0 {
			d.rotationInterval = interval
		}
	}
}

// WithSnapshotLogger installs a Logger on the distributor.
func WithSnapshotLogger(l logger.Logger) SnapshotDistributorOption {
	return func(d *SnapshotDistributor) {
		d.log = l
	}
}

func NewSnapshotDistributor(ruleSets RuleSetStore, subRules SubRuleStore, groups GroupStore, opts ...SnapshotDistributorOption) (*SnapshotDistributor, error) {
	if ruleSets == nil || subRules == nil {
		return nil, fmt.Errorf("rule set and sub-rule stores are required")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	dist := &SnapshotDistributor{
		ruleSets:         ruleSets,
		subRules:         subRules,
		groups:           groups,
		priv:             priv,
		pub:              pub,
		rotationInterval: 24 * time.Hour,
		notifyCh:         make(chan string, 1024),
		stopCh:           make(chan struct{}),
		subscribers:      make(map[string][]SnapshotSubscriber),
		log:              logger.NewPhusluLogger(),
	}
	for _, opt := range opts {
		opt(dist)
	}
	return dist, nil
}

func (d *SnapshotDistributor) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.rotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case scope := <-d.notifyCh:
				if scope == "" {
					continue
				}
				if err := d.distribute(ctx, scope); err != nil {
					d.log.Error("snapshot distribution failed", "scope", scope, "error", err)
				}
			case <-ticker.C:
				if err := d.RotateSigningKey(); err != nil {
					d.log.Error("snapshot key rotation failed", "error", err)
				}
			}
		}
	}()
}

func (d *SnapshotDistributor) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// NotifyChange queues a snapshot export for the given scope. The send
// never blocks; a full queue drops the signal, which is safe because a
// later change produces a fresher snapshot anyway.
func (d *SnapshotDistributor) NotifyChange(scope string) {
	if scope == "" {
		return
	}
	select {
	case d.notifyCh <- scope:
	default:
	}
}

// RegisterSubscriber adds a subscriber for a model scope. An empty
// scope subscribes to everything.
func (d *SnapshotDistributor) RegisterSubscriber(scope string, sub SnapshotSubscriber) {
	if sub == nil {
		return
	}
	if scope == "" {
		scope = ScopeAll
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[scope] = append(d.subscribers[scope], sub)
}

func (d *SnapshotDistributor) RotateSigningKey() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.priv = priv
	d.pub = pub
	d.mu.Unlock()
	return nil
}

func (d *SnapshotDistributor) CurrentPublicKey() ed25519.PublicKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(ed25519.PublicKey(nil), d.pub...)
}

// Export builds and signs a snapshot for the scope without going
// through the notify queue.
func (d *SnapshotDistributor) Export(ctx context.Context, scope string) (*SignedSnapshot, error) {
	cfg, err := d.buildConfig(ctx, scope)
	if err != nil {
		return nil, err
	}
	return d.sign(scope, cfg)
}

func (d *SnapshotDistributor) distribute(ctx context.Context, scope string) error {
	snap, err := d.Export(ctx, scope)
	if err != nil {
		return err
	}
	for _, sub := range d.collectSubscribers(scope) {
		if err := sub.OnSnapshot(ctx, scope, d.CurrentPublicKey(), snap); err != nil {
			d.log.Error("snapshot subscriber error", "scope", scope, "error", err)
		}
	}
	return nil
}

func (d *SnapshotDistributor) buildConfig(ctx context.Context, scope string) (*Config, error) {
	model := scope
	if scope == ScopeAll {
		model = ""
	}
	cfg := &Config{Version: 1}
	var err error
	if cfg.RuleSets, err = d.ruleSets.ListRuleSets(ctx); err != nil {
		return nil, err
	}
	if d.groups != nil {
		if cfg.Groups, err = d.groups.ListGroups(ctx); err != nil {
			return nil, err
		}
	}
	if cfg.ModelAccess, err = d.subRules.ListModelAccess(ctx, model); err != nil {
		return nil, err
	}
	if cfg.FieldAccess, err = d.subRules.ListFieldAccess(ctx, model); err != nil {
		return nil, err
	}
	if cfg.FieldConditions, err = d.subRules.ListFieldConditions(ctx, model); err != nil {
		return nil, err
	}
	if cfg.DomainAccess, err = d.subRules.ListDomainAccess(ctx, model); err != nil {
		return nil, err
	}
	if cfg.HideButtonsTabs, err = d.subRules.ListHideButtonsTabs(ctx, model); err != nil {
		return nil, err
	}
	if cfg.SearchPanel, err = d.subRules.ListSearchPanelAccess(ctx, model); err != nil {
		return nil, err
	}
	if cfg.Chatter, err = d.subRules.ListChatterAccess(ctx, model); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d *SnapshotDistributor) sign(scope string, cfg *Config) (*SignedSnapshot, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	priv := d.priv
	pub := d.pub
	d.mu.RUnlock()
	sig := ed25519.Sign(priv, payload)
	return &SignedSnapshot{
		Scope:     scope,
		Payload:   payload,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Meta: map[string]any{
			"generated_at": time.Now().UTC().Format(time.RFC3339Nano),
			"signing_key":  base64.StdEncoding.EncodeToString(pub),
		},
	}, nil
}

func (d *SnapshotDistributor) collectSubscribers(scope string) []SnapshotSubscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if scope != ScopeAll {
		subs := make([]SnapshotSubscriber, 0, len(d.subscribers[scope])+len(d.subscribers[ScopeAll]))
		subs = append(subs, d.subscribers[scope]...)
		subs = append(subs, d.subscribers[ScopeAll]...)
		return subs
	}
	// a global change reaches every scoped subscriber too
	var subs []SnapshotSubscriber
	for _, list := range d.subscribers {
		subs = append(subs, list...)
	}
	return subs
}
