package runtime

import (
	"context"

	"github.com/aretw0/lockstep/pkg/domain"
)

// runSecondContender attempts the lock while the first holder has it, must
// observe "blocked", and acquires the lock once the first holder releases it.
func (d *Driver) runSecondContender(ctx context.Context) error {
	if err := d.expect(ctx, domain.TokenStart); err != nil {
		return err
	}
	if err := d.expect(ctx, domain.TokenPreLock); err != nil {
		return err
	}

	if err := d.await(ctx, domain.MilestoneHoldingLock); err != nil {
		return err
	}
	if err := d.send(); err != nil {
		return err
	}

	tok, err := d.readPastBlocked(ctx, func() error {
		return d.publish(ctx, domain.MilestoneBlocked)
	})
	if err != nil {
		return err
	}
	if err := d.expectHoldingLock(tok); err != nil {
		return err
	}

	if err := d.await(ctx, domain.MilestoneReleasedLock); err != nil {
		return err
	}
	return d.finish()
}
