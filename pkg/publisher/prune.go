package publisher

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/errors"
	"github.com/enku/gentoo-build-publisher/pkg/model"
	recordsstatus "github.com/enku/gentoo-build-publisher/pkg/records/status"
)

// Prune removes a machine's prunable builds per the configured
// retention thresholds and returns what it removed.
//
// A build is never a candidate while it is published, marked keep, or
// referenced by a tag. Candidates in excess of the retention count,
// and candidates older than the retention age, go oldest first. The
// machine lock is held for the whole run and each candidate's
// exclusions are re-checked right before its delete, so a concurrent
// publish, tag or keep cannot race a selection made earlier.
func (p *Publisher) Prune(ctx context.Context, machine string) ([]model.Build, error) {
	if p.retainCount <= 0 && p.retainDays <= 0 {
		return nil, nil
	}

	unlock := p.machines.lock(machine)
	defer unlock()

	candidates, err := p.pruneCandidates(machine)
	if err != nil {
		return nil, err
	}

	var removed []model.Build
	for _, build := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if p.exempt(build) {
			continue
		}
		if err := p.remove(ctx, build); err != nil {
			return removed, err
		}
		p.recorder.IncPruned(machine)
		removed = append(removed, build)
	}
	if len(removed) > 0 {
		p.l.Info("pruned builds",
			zap.String("machine", machine),
			zap.Int("removed", len(removed)),
		)
	}
	return removed, nil
}

// pruneCandidates selects the machine's non-exempt builds that fall
// outside the retention thresholds, oldest first
func (p *Publisher) pruneCandidates(machine string) ([]model.Build, error) {
	builds, err := p.store.Builds()
	if err != nil {
		return nil, err
	}

	var eligible []model.Build
	for _, build := range builds {
		if build.Machine != machine || p.exempt(build) {
			continue
		}
		eligible = append(eligible, build)
	}
	// newest first for threshold slicing
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].Number > eligible[j].Number
	})

	selected := make(map[model.Build]struct{})
	if p.retainCount > 0 && len(eligible) > p.retainCount {
		for _, build := range eligible[p.retainCount:] {
			selected[build] = struct{}{}
		}
	}
	if p.retainDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -p.retainDays)
		for _, build := range eligible {
			if when, ok := p.buildTime(build); ok && when.Before(cutoff) {
				selected[build] = struct{}{}
			}
		}
	}

	candidates := make([]model.Build, 0, len(selected))
	for build := range selected {
		candidates = append(candidates, build)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Number < candidates[j].Number
	})
	return candidates, nil
}

// exempt reports whether the build is excluded from pruning
func (p *Publisher) exempt(build model.Build) bool {
	if p.store.Published(build) {
		return true
	}
	for _, tag := range p.store.Tags(build) {
		if tag != "" {
			return true
		}
	}
	rec, err := p.db.Get(build)
	if err != nil {
		if !errors.Is(err, recordsstatus.ErrRecordNotFound) {
			// cannot prove the build is prunable, leave it alone
			p.l.Warn("record unreadable, skipping prune candidate",
				zap.String("build", build.ID()), zap.Error(err))
			return true
		}
		return false
	}
	return rec.Keep || rec.Published
}

// buildTime is the timestamp age-based retention measures against
func (p *Publisher) buildTime(build model.Build) (time.Time, bool) {
	rec, err := p.db.Get(build)
	if err != nil || rec.Submitted.IsZero() {
		return time.Time{}, false
	}
	return rec.Submitted, true
}
