package secrets

import (
	"context"

	"github.com/loker/loker/internal/awserr"
	"github.com/loker/loker/internal/store"
)

// TagResource upserts the given tags on a live secret. Tag keys are
// case-sensitive; writing an existing key replaces its value.
func (s *Service) TagResource(ctx context.Context, in *TagResourceInput) error {
	if len(in.Tags) == 0 {
		return awserr.ErrInvalidParameter.WithMessage("You must provide at least one tag")
	}
	if err := validateTags(in.Tags); err != nil {
		return err
	}

	now := s.clk.Now()
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := resolveSecret(tx, in.SecretId)
		if err != nil {
			return err
		}
		if rec == nil {
			return awserr.ErrResourceNotFound
		}
		if rec.Deleted() {
			return awserr.ErrInvalidRequest.WithMessage(
				"You can't perform this operation on the secret because it was marked for deletion.")
		}
		for _, tag := range in.Tags {
			if err := tx.UpsertTag(rec.ARN, tag.Key, tag.Value, now); err != nil {
				return err
			}
		}
		return tx.TouchSecret(rec.ARN, now)
	})
	return mapStoreErr(err)
}

// UntagResource removes the given tag keys from a live secret. Absent keys
// are ignored.
func (s *Service) UntagResource(ctx context.Context, in *UntagResourceInput) error {
	if len(in.TagKeys) == 0 {
		return awserr.ErrInvalidParameter.WithMessage("You must provide at least one tag key")
	}

	now := s.clk.Now()
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := resolveSecret(tx, in.SecretId)
		if err != nil {
			return err
		}
		if rec == nil {
			return awserr.ErrResourceNotFound
		}
		if rec.Deleted() {
			return awserr.ErrInvalidRequest.WithMessage(
				"You can't perform this operation on the secret because it was marked for deletion.")
		}
		for _, key := range in.TagKeys {
			if err := tx.DeleteTag(rec.ARN, key); err != nil {
				return err
			}
		}
		return tx.TouchSecret(rec.ARN, now)
	})
	return mapStoreErr(err)
}
