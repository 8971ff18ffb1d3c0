// Package stepup resolves which groups demand high-privilege sessions to
// vote. The set is an external policy input loaded from a static YAML
// file; rule-tree leaves can additionally mark themselves via
// require_step_up.
package stepup

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type policyFile struct {
	Groups []string `yaml:"groups"`
}

// Policy holds the set of group IDs whose votes require step-up
// authentication. Safe for concurrent use; Sync reloads from disk.
type Policy struct {
	path   string
	mu     sync.RWMutex
	groups map[string]struct{}
}

// Load reads the policy from path. A missing or empty file is not an
// error at the Empty() call sites, but Load itself requires the file to
// exist.
func Load(path string) (*Policy, error) {
	p := &Policy{path: path}
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return p, nil
}

// Empty returns a policy requiring step-up for no group.
func Empty() *Policy {
	return &Policy{groups: make(map[string]struct{})}
}

// Groups returns a snapshot of the step-up group set.
func (p *Policy) Groups() map[string]struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]struct{}, len(p.groups))
	for g := range p.groups {
		out[g] = struct{}{}
	}
	return out
}

// Requires reports whether the given group is in the step-up set.
func (p *Policy) Requires(groupID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.groups[groupID]
	return ok
}

// Sync reloads the policy file from disk.
func (p *Policy) Sync() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("stepup: reading policy file %s: %w", p.path, err)
	}

	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("stepup: parsing policy file %s: %w", p.path, err)
	}

	groups := make(map[string]struct{}, len(f.Groups))
	for _, g := range f.Groups {
		groups[g] = struct{}{}
	}

	p.mu.Lock()
	p.groups = groups
	p.mu.Unlock()

	return nil
}
