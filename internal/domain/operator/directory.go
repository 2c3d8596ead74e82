// Package operator exposes the operator facts the commission pipeline reads.
package operator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okian/tnvs/internal/domain/model"
)

// Directory supplies operator profiles. The registry itself lives outside
// this service; Put exists so profiles can be seeded or refreshed.
type Directory interface {
	Get(ctx context.Context, id string) (model.OperatorProfile, error)
	Put(ctx context.Context, p model.OperatorProfile) error
	List(ctx context.Context) ([]model.OperatorProfile, error)
}

// Validate checks the ranges of a profile.
func Validate(p model.OperatorProfile) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidProfile)
	case p.Type != model.OperatorIndividual && p.Type != model.OperatorCorporate:
		return fmt.Errorf("%w: type %q", ErrInvalidProfile, p.Type)
	case p.Tier != model.TierNone && !p.Tier.Valid():
		return fmt.Errorf("%w: tier %q", ErrInvalidProfile, p.Tier)
	case p.TenureMonths < 0:
		return fmt.Errorf("%w: negative tenure", ErrInvalidProfile)
	case p.PaymentConsistency < 0 || p.PaymentConsistency > 1:
		return fmt.Errorf("%w: payment consistency %v outside [0,1]", ErrInvalidProfile, p.PaymentConsistency)
	case p.UtilizationPercentile < 0 || p.UtilizationPercentile > 100:
		return fmt.Errorf("%w: utilization percentile %v outside [0,100]", ErrInvalidProfile, p.UtilizationPercentile)
	}
	return nil
}

type inMemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[string]model.OperatorProfile
}

// NewInMemoryDirectory creates a directory holding the given profiles.
// Invalid seeds are reported as an error.
func NewInMemoryDirectory(seed ...model.OperatorProfile) (Directory, error) {
	d := &inMemoryDirectory{profiles: make(map[string]model.OperatorProfile, len(seed))}
	for _, p := range seed {
		if err := d.Put(context.Background(), p); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *inMemoryDirectory) Get(_ context.Context, id string) (model.OperatorProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[id]
	if !ok {
		return model.OperatorProfile{}, fmt.Errorf("%w: %s", ErrUnknownOperator, id)
	}
	return clone(p), nil
}

func (d *inMemoryDirectory) Put(_ context.Context, p model.OperatorProfile) error {
	if err := Validate(p); err != nil {
		return err
	}
	d.mu.Lock()
	d.profiles[p.ID] = clone(p)
	d.mu.Unlock()
	return nil
}

func (d *inMemoryDirectory) List(_ context.Context) ([]model.OperatorProfile, error) {
	d.mu.RLock()
	out := make([]model.OperatorProfile, 0, len(d.profiles))
	for _, p := range d.profiles {
		out = append(out, clone(p))
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(p model.OperatorProfile) model.OperatorProfile {
	if p.Violations != nil {
		p.Violations = append([]model.Violation(nil), p.Violations...)
	}
	return p
}
