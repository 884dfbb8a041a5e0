package secrets

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loker/loker/internal/awserr"
	"github.com/loker/loker/internal/jsonutil"
	"github.com/loker/loker/internal/store"
)

// errVersionExists signals that a client request token already names a
// version with a different payload.
var errVersionExists = awserr.ErrResourceExists.WithMessage(
	"A version with this ClientRequestToken already exists with different secret data.")

// putVersion stores a new version and attaches the requested stage labels,
// applying the AWSCURRENT -> AWSPREVIOUS transition. It returns the version
// id and the stages attached to it. When the token names an existing version
// with an identical payload, that version is returned untouched.
func (s *Service) putVersion(tx *store.Tx, rec *store.SecretRecord, token string,
	secretString *string, secretBinary []byte, stages []string, now time.Time) (string, []string, error) {

	if token != "" {
		existing, err := tx.GetVersion(rec.ARN, token)
		if err != nil {
			return "", nil, err
		}
		if existing != nil {
			if !payloadEqual(existing, secretString, secretBinary) {
				return "", nil, errVersionExists
			}
			// Idempotent replay: no new version, no stage movement.
			labels, err := tx.ListStagesForVersion(rec.ARN, token)
			if err != nil {
				return "", nil, err
			}
			return token, labels, nil
		}
	}

	versionID := token
	if versionID == "" {
		versionID = uuid.NewString()
	}

	v := &store.VersionRecord{
		SecretARN:    rec.ARN,
		VersionID:    versionID,
		SecretString: secretString,
		SecretBinary: secretBinary,
		CreatedAt:    now,
	}
	if err := tx.InsertVersion(v); err != nil {
		return "", nil, err
	}

	requested := make(map[string]bool, len(stages))
	for _, label := range stages {
		requested[label] = true
	}

	for _, label := range stages {
		holder, err := tx.GetStageVersion(rec.ARN, label)
		if err != nil {
			return "", nil, err
		}
		if holder != "" {
			if err := tx.DeleteStage(rec.ARN, label); err != nil {
				return "", nil, err
			}
		}
		// Moving AWSCURRENT hands AWSPREVIOUS to the version that held it.
		// This is the sole automatic stage transition. A version left with
		// zero stages stays in the database as history.
		if label == StageCurrent && holder != "" && holder != versionID && !requested[StagePrevious] {
			if err := tx.DeleteStage(rec.ARN, StagePrevious); err != nil {
				return "", nil, err
			}
			if err := tx.InsertStage(rec.ARN, holder, StagePrevious, now); err != nil {
				return "", nil, err
			}
		}
		if err := tx.InsertStage(rec.ARN, versionID, label, now); err != nil {
			return "", nil, err
		}
	}

	if err := tx.TouchSecret(rec.ARN, now); err != nil {
		return "", nil, err
	}
	return versionID, stages, nil
}

// PutSecretValue stores a new version of a secret and moves the requested
// stage labels (default AWSCURRENT) onto it.
func (s *Service) PutSecretValue(ctx context.Context, in *PutSecretValueInput) (*PutSecretValueOutput, error) {
	if err := validatePayload(in.SecretString, in.SecretBinary, false); err != nil {
		return nil, err
	}
	stages := in.VersionStages
	if len(stages) == 0 {
		stages = []string{StageCurrent}
	}
	for _, label := range stages {
		if label == "" {
			return nil, awserr.ErrInvalidParameter.WithMessage("Version stage labels must not be empty")
		}
	}

	now := s.clk.Now()
	var out *PutSecretValueOutput

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := resolveLive(tx, in.SecretId)
		if err != nil {
			return err
		}
		versionID, attached, err := s.putVersion(tx, rec, in.ClientRequestToken,
			in.SecretString, in.SecretBinary, stages, now)
		if err != nil {
			return err
		}
		out = &PutSecretValueOutput{
			ARN:           rec.ARN,
			Name:          rec.Name,
			VersionId:     versionID,
			VersionStages: attached,
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

// GetSecretValue retrieves a version's secret material, selected by version
// id, stage label, or both (which must agree). Defaults to AWSCURRENT.
func (s *Service) GetSecretValue(ctx context.Context, in *GetSecretValueInput) (*GetSecretValueOutput, error) {
	now := s.clk.Now()
	var out *GetSecretValueOutput

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := resolveLive(tx, in.SecretId)
		if err != nil {
			return err
		}

		var version *store.VersionRecord
		if in.VersionId != "" {
			version, err = tx.GetVersion(rec.ARN, in.VersionId)
			if err != nil {
				return err
			}
			if version == nil {
				return awserr.ErrResourceNotFound.WithMessage(
					"Secrets Manager can't find the specified secret value for VersionId: %s", in.VersionId)
			}
		} else {
			stage := in.VersionStage
			if stage == "" {
				stage = StageCurrent
			}
			versionID, err := tx.GetStageVersion(rec.ARN, stage)
			if err != nil {
				return err
			}
			if versionID == "" {
				return awserr.ErrResourceNotFound.WithMessage(
					"Secrets Manager can't find the specified secret value for staging label: %s", stage)
			}
			version, err = tx.GetVersion(rec.ARN, versionID)
			if err != nil {
				return err
			}
			if version == nil {
				return awserr.ErrResourceNotFound
			}
		}

		labels, err := tx.ListStagesForVersion(rec.ARN, version.VersionID)
		if err != nil {
			return err
		}

		// Both selectors supplied: they must name the same version.
		if in.VersionId != "" && in.VersionStage != "" && !containsLabel(labels, in.VersionStage) {
			return awserr.ErrResourceNotFound.WithMessage(
				"Secrets Manager can't find the specified secret value for staging label: %s", in.VersionStage)
		}

		// AWS records access at day granularity.
		if err := tx.UpdateVersionAccessed(rec.ARN, version.VersionID, midnightUTC(now)); err != nil {
			return err
		}

		out = &GetSecretValueOutput{
			ARN:           rec.ARN,
			Name:          rec.Name,
			VersionId:     version.VersionID,
			SecretString:  version.SecretString,
			SecretBinary:  version.SecretBinary,
			VersionStages: labels,
			CreatedDate:   jsonutil.Timestamp(version.CreatedAt),
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

// ListSecretVersionIds lists a secret's versions with their stage labels.
// Versions carrying no stage are included only with IncludeDeprecated.
// Like DescribeSecret, this returns metadata only and works on soft-deleted
// secrets.
func (s *Service) ListSecretVersionIds(ctx context.Context, in *ListSecretVersionIdsInput) (*ListSecretVersionIdsOutput, error) {
	var out *ListSecretVersionIdsOutput

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := resolveSecret(tx, in.SecretId)
		if err != nil {
			return err
		}
		if rec == nil {
			return awserr.ErrResourceNotFound
		}

		versions, err := tx.ListVersions(rec.ARN)
		if err != nil {
			return err
		}
		stages, err := tx.ListStagesForSecret(rec.ARN)
		if err != nil {
			return err
		}

		out = &ListSecretVersionIdsOutput{ARN: rec.ARN, Name: rec.Name, Versions: []SecretVersionsListEntry{}}
		for i := range versions {
			v := &versions[i]
			labels := stages[v.VersionID]
			if len(labels) == 0 && !in.IncludeDeprecated {
				continue
			}
			entry := SecretVersionsListEntry{
				VersionId:     v.VersionID,
				VersionStages: labels,
				CreatedDate:   jsonutil.Timestamp(v.CreatedAt),
			}
			if v.LastAccessedAt != nil {
				ts := jsonutil.Timestamp(*v.LastAccessedAt)
				entry.LastAccessedDate = &ts
			}
			out.Versions = append(out.Versions, entry)
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return out, nil
}

// containsLabel reports whether labels contains label.
func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// latestAccess returns the most recent last-accessed instant across
// versions, or nil when no version has been read.
func latestAccess(versions []store.VersionRecord) *time.Time {
	var latest *time.Time
	for i := range versions {
		at := versions[i].LastAccessedAt
		if at == nil {
			continue
		}
		if latest == nil || at.After(*latest) {
			latest = at
		}
	}
	return latest
}
