package runtime

import (
	"context"

	"github.com/aretw0/lockstep/pkg/domain"
)

// runFirstHolder takes the lock first and keeps it until the second contender
// has reported that it is blocked.
func (d *Driver) runFirstHolder(ctx context.Context) error {
	if err := d.expect(ctx, domain.TokenStart); err != nil {
		return err
	}
	if err := d.expect(ctx, domain.TokenPreLock); err != nil {
		return err
	}
	if err := d.send(); err != nil {
		return err
	}

	// Nothing else should hold the lock yet, but a "blocked" is tolerated.
	tok, err := d.readPastBlocked(ctx, nil)
	if err != nil {
		return err
	}
	if err := d.expectHoldingLock(tok); err != nil {
		return err
	}

	if err := d.publish(ctx, domain.MilestoneHoldingLock); err != nil {
		return err
	}
	if err := d.await(ctx, domain.MilestoneBlocked); err != nil {
		return err
	}

	if err := d.finish(); err != nil {
		return err
	}
	return d.publish(ctx, domain.MilestoneReleasedLock)
}
