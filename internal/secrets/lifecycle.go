package secrets

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/loker/loker/internal/awserr"
	"github.com/loker/loker/internal/jsonutil"
	"github.com/loker/loker/internal/store"
)

const (
	// defaultRecoveryWindowDays is the recovery window applied when a
	// DeleteSecret request does not name one.
	defaultRecoveryWindowDays = 30
	minRecoveryWindowDays     = 7
	maxRecoveryWindowDays     = 30
)

// CreateSecret creates a new secret, optionally with an initial version
// staged AWSCURRENT and an initial tag set.
func (s *Service) CreateSecret(ctx context.Context, in *CreateSecretInput) (*CreateSecretOutput, error) {
	if err := validateName(in.Name); err != nil {
		return nil, err
	}
	if in.Description != nil && len(*in.Description) > maxDescriptionLen {
		return nil, awserr.ErrInvalidParameter.WithMessage("Description must be at most %d characters", maxDescriptionLen)
	}
	if err := validatePayload(in.SecretString, in.SecretBinary, true); err != nil {
		return nil, err
	}
	if err := validateTags(in.Tags); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	out := &CreateSecretOutput{Name: in.Name}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := tx.GetSecretByName(in.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Deleted() {
				return awserr.ErrInvalidRequest.WithMessage(
					"You can't create this secret because a secret with this name is already scheduled for deletion.")
			}
			return awserr.ErrResourceExists.WithMessage("The secret %s already exists.", in.Name)
		}

		arn, err := s.mintARN(in.Name)
		if err != nil {
			return err
		}
		out.ARN = arn

		description := ""
		if in.Description != nil {
			description = *in.Description
		}
		rec := &store.SecretRecord{
			ARN:         arn,
			Name:        in.Name,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertSecret(rec); err != nil {
			return err
		}

		if in.SecretString != nil || in.SecretBinary != nil {
			versionID := in.ClientRequestToken
			if versionID == "" {
				versionID = uuid.NewString()
			}
			v := &store.VersionRecord{
				SecretARN:    arn,
				VersionID:    versionID,
				SecretString: in.SecretString,
				SecretBinary: in.SecretBinary,
				CreatedAt:    now,
			}
			if err := tx.InsertVersion(v); err != nil {
				return err
			}
			if err := tx.InsertStage(arn, versionID, StageCurrent, now); err != nil {
				return err
			}
			out.VersionId = versionID
		}

		for _, tag := range in.Tags {
			if err := tx.UpsertTag(arn, tag.Key, tag.Value, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

// DescribeSecret returns a secret's metadata. Soft-deleted secrets remain
// describable; no secret material is returned.
func (s *Service) DescribeSecret(ctx context.Context, in *DescribeSecretInput) (*DescribeSecretOutput, error) {
	var out *DescribeSecretOutput
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := resolveSecret(tx, in.SecretId)
		if err != nil {
			return err
		}
		if rec == nil {
			return awserr.ErrResourceNotFound
		}

		stages, err := tx.ListStagesForSecret(rec.ARN)
		if err != nil {
			return err
		}
		tags, err := tx.ListTags(rec.ARN)
		if err != nil {
			return err
		}
		versions, err := tx.ListVersions(rec.ARN)
		if err != nil {
			return err
		}

		out = &DescribeSecretOutput{
			ARN:             rec.ARN,
			Name:            rec.Name,
			Description:     rec.Description,
			CreatedDate:     jsonutil.Timestamp(rec.CreatedAt),
			LastChangedDate: jsonutil.Timestamp(rec.UpdatedAt),
		}
		if len(stages) > 0 {
			out.VersionIdsToStages = stages
		}
		if rec.DeletedAt != nil {
			ts := jsonutil.Timestamp(*rec.DeletedAt)
			out.DeletedDate = &ts
		}
		if last := latestAccess(versions); last != nil {
			ts := jsonutil.Timestamp(*last)
			out.LastAccessedDate = &ts
		}
		for _, tag := range tags {
			out.Tags = append(out.Tags, Tag{Key: tag.Key, Value: tag.Value})
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

// UpdateSecret updates the description and/or stores new secret material as
// a version staged AWSCURRENT. Soft-deleted secrets cannot be updated.
func (s *Service) UpdateSecret(ctx context.Context, in *UpdateSecretInput) (*UpdateSecretOutput, error) {
	if in.Description != nil && len(*in.Description) > maxDescriptionLen {
		return nil, awserr.ErrInvalidParameter.WithMessage("Description must be at most %d characters", maxDescriptionLen)
	}
	if err := validatePayload(in.SecretString, in.SecretBinary, true); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	var out *UpdateSecretOutput

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

		out = &UpdateSecretOutput{ARN: rec.ARN, Name: rec.Name}

		if in.Description != nil {
			if err := tx.UpdateSecretDescription(rec.ARN, *in.Description, now); err != nil {
				return err
			}
		}

		if in.SecretString != nil || in.SecretBinary != nil {
			versionID, _, err := s.putVersion(tx, rec, in.ClientRequestToken,
				in.SecretString, in.SecretBinary, []string{StageCurrent}, now)
			if err != nil {
				return err
			}
			out.VersionId = versionID
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

// DeleteSecret soft-deletes a secret with a recovery window, or hard-deletes
// immediately when ForceDeleteWithoutRecovery is set.
func (s *Service) DeleteSecret(ctx context.Context, in *DeleteSecretInput) (*DeleteSecretOutput, error) {
	force := in.ForceDeleteWithoutRecovery != nil && *in.ForceDeleteWithoutRecovery
	if force && in.RecoveryWindowInDays != nil {
		return nil, awserr.ErrInvalidParameterCombination.WithMessage(
			"You can't use ForceDeleteWithoutRecovery in conjunction with RecoveryWindowInDays.")
	}
	window := int64(defaultRecoveryWindowDays)
	if in.RecoveryWindowInDays != nil {
		window = *in.RecoveryWindowInDays
		if window < minRecoveryWindowDays || window > maxRecoveryWindowDays {
			return nil, awserr.ErrInvalidParameter.WithMessage(
				"RecoveryWindowInDays must be between %d and %d days", minRecoveryWindowDays, maxRecoveryWindowDays)
		}
	}

	now := s.clk.Now()
	var out *DeleteSecretOutput

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := resolveSecret(tx, in.SecretId)
		if err != nil {
			return err
		}
		if rec == nil {
			return awserr.ErrResourceNotFound
		}

		out = &DeleteSecretOutput{ARN: rec.ARN, Name: rec.Name}

		if force {
			out.DeletionDate = jsonutil.Timestamp(now)
			return tx.HardDeleteSecret(rec.ARN)
		}

		if rec.Deleted() {
			// Already scheduled: idempotent, report the existing schedule.
			out.DeletionDate = jsonutil.Timestamp(*rec.ScheduledDeleteAt)
			return nil
		}

		scheduled := now.AddDate(0, 0, int(window))
		out.DeletionDate = jsonutil.Timestamp(scheduled)
		return tx.SoftDeleteSecret(rec.ARN, now, scheduled)
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

// RestoreSecret clears the soft-delete state. Restoring a live secret
// succeeds as a no-op.
func (s *Service) RestoreSecret(ctx context.Context, in *RestoreSecretInput) (*RestoreSecretOutput, error) {
	now := s.clk.Now()
	var out *RestoreSecretOutput

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := resolveSecret(tx, in.SecretId)
		if err != nil {
			return err
		}
		if rec == nil {
			return awserr.ErrResourceNotFound
		}
		out = &RestoreSecretOutput{ARN: rec.ARN, Name: rec.Name}
		if !rec.Deleted() {
			return nil
		}
		return tx.RestoreSecret(rec.ARN, now)
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

const (
	defaultListPageSize = 100
	maxListPageSize     = 100
)

// ListSecrets pages through secrets ordered by name. Soft-deleted secrets
// are excluded unless IncludePlannedDeletion is set. Filters with key
// "name" narrow by name prefix.
func (s *Service) ListSecrets(ctx context.Context, in *ListSecretsInput) (*ListSecretsOutput, error) {
	limit := int(in.MaxResults)
	if limit == 0 {
		limit = defaultListPageSize
	}
	if limit < 1 || limit > maxListPageSize {
		return nil, awserr.ErrInvalidParameter.WithMessage("MaxResults must be between 1 and %d", maxListPageSize)
	}

	offset := 0
	if in.NextToken != "" {
		n, err := strconv.Atoi(in.NextToken)
		if err != nil || n < 0 {
			return nil, awserr.ErrInvalidNextToken
		}
		offset = n
	}

	namePrefix := ""
	for _, f := range in.Filters {
		if strings.EqualFold(f.Key, "name") && len(f.Values) > 0 {
			namePrefix = f.Values[0]
		}
	}

	out := &ListSecretsOutput{SecretList: []SecretListEntry{}}
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		// Fetch one extra row to decide whether another page exists.
		recs, err := tx.ListSecrets(in.IncludePlannedDeletion, namePrefix, limit+1, offset)
		if err != nil {
			return err
		}
		if len(recs) > limit {
			recs = recs[:limit]
			out.NextToken = strconv.Itoa(offset + limit)
		}
		for i := range recs {
			rec := &recs[i]
			entry := SecretListEntry{
				ARN:             rec.ARN,
				Name:            rec.Name,
				Description:     rec.Description,
				CreatedDate:     jsonutil.Timestamp(rec.CreatedAt),
				LastChangedDate: jsonutil.Timestamp(rec.UpdatedAt),
			}
			if rec.DeletedAt != nil {
				ts := jsonutil.Timestamp(*rec.DeletedAt)
				entry.DeletedDate = &ts
			}
			stages, err := tx.ListStagesForSecret(rec.ARN)
			if err != nil {
				return err
			}
			if len(stages) > 0 {
				entry.SecretVersionsToStages = stages
			}
			tags, err := tx.ListTags(rec.ARN)
			if err != nil {
				return err
			}
			for _, tag := range tags {
				entry.Tags = append(entry.Tags, Tag{Key: tag.Key, Value: tag.Value})
			}
			out.SecretList = append(out.SecretList, entry)
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}
