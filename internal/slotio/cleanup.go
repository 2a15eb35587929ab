package slotio

import (
	"context"

	"transferchain/go-sdk/internal/transport"
	"transferchain/go-sdk/pkg/models"

	"go.uber.org/multierr"
)

func (p *Pipeline) deleteSlot(ctx context.Context, slot models.Slot, op transport.OpCode) error {
	return p.svc.Delete(ctx, &transport.DeleteRequest{
		UUID:        slot.UUID,
		StorageCode: slot.StorageCode,
		WalletID:    p.account.WalletID,
		Slot:        slot,
		OpCode:      op,
		UserID:      p.account.UserID,
	})
}

// CancelUpload deletes slots one after another and stops at the first
// failure. It compensates an upload that has not been announced yet.
func (p *Pipeline) CancelUpload(ctx context.Context, slots []models.Slot, op transport.OpCode) error {
	for _, slot := range slots {
		err := p.deleteSlot(ctx, slot, op)
		p.metrics.ObserveSlotDelete("cancel", err)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteSlots deletes every slot concurrently and reports all failures
// together. Slots that were deleted stay deleted when others fail.
func (p *Pipeline) DeleteSlots(ctx context.Context, slots []models.Slot, op transport.OpCode) error {
	errs := Each(ctx, len(slots), p.parallelDeletes,
		func(ctx context.Context, i int) error {
			err := p.deleteSlot(ctx, slots[i], op)
			p.metrics.ObserveSlotDelete("delete", err)
			return err
		},
		func(_ int, v any) error { return PanicError(v) },
	)
	return multierr.Combine(errs...)
}
