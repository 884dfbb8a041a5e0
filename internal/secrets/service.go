// Package secrets implements the secret/version/stage model and the
// operation contracts of the Secrets Manager API.
package secrets

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/loker/loker/internal/awserr"
	"github.com/loker/loker/internal/clock"
	"github.com/loker/loker/internal/store"
)

const (
	// StageCurrent is the reserved label for the active secret value.
	StageCurrent = "AWSCURRENT"
	// StagePrevious is the reserved label for the prior secret value.
	StagePrevious = "AWSPREVIOUS"

	// accountID is the fixed account number used in minted ARNs.
	accountID = "000000000000"

	// arnSuffixLen is the number of random characters appended to secret names
	// in ARNs.
	arnSuffixLen = 6

	maxDescriptionLen = 2048
	maxTagKeyLen      = 128
	maxTagValueLen    = 256
)

// nameRe constrains secret names: 1-512 chars from the allowed set.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9/_+=.@-]{1,512}$`)

// suffixAlphabet is the URL-safe alphanumeric set used for ARN suffixes.
const suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Service implements the secret model operations on top of the encrypted
// store. Every operation runs as a single store transaction.
type Service struct {
	store  *store.Store
	clk    clock.Clock
	region string
}

// NewService creates a Service minting ARNs in the given region.
func NewService(st *store.Store, clk clock.Clock, region string) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{store: st, clk: clk, region: region}
}

// mintARN builds a secret ARN with a fresh random 6-character suffix.
func (s *Service) mintARN(name string) (string, error) {
	buf := make([]byte, arnSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating arn suffix: %w", err)
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return fmt.Sprintf("arn:aws:secretsmanager:%s:%s:secret:%s-%s", s.region, accountID, name, buf), nil
}

// resolveSecret looks up a secret by name or full ARN. Returns nil when no
// such secret exists.
func resolveSecret(tx *store.Tx, secretID string) (*store.SecretRecord, error) {
	rec, err := tx.GetSecretByARN(secretID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	return tx.GetSecretByName(secretID)
}

// resolveLive resolves a secret that must exist and not be soft-deleted.
func resolveLive(tx *store.Tx, secretID string) (*store.SecretRecord, error) {
	rec, err := resolveSecret(tx, secretID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Deleted() {
		return nil, awserr.ErrResourceNotFound
	}
	return rec, nil
}

// validateName checks a secret name against the allowed grammar.
func validateName(name string) error {
	if !nameRe.MatchString(name) {
		return awserr.ErrInvalidParameter.WithMessage("Invalid name: must be 1-512 characters from [A-Za-z0-9/_+=.@-]")
	}
	return nil
}

// validatePayload enforces that exactly one of secretString / secretBinary
// is present. When optional is true, neither being present is allowed.
func validatePayload(secretString *string, secretBinary []byte, optional bool) error {
	hasString := secretString != nil
	hasBinary := secretBinary != nil
	if hasString && hasBinary {
		return awserr.ErrInvalidParameterCombination.WithMessage("You cannot specify both SecretString and SecretBinary")
	}
	if !hasString && !hasBinary && !optional {
		return awserr.ErrInvalidParameter.WithMessage("You must provide either SecretString or SecretBinary")
	}
	return nil
}

// validateTags checks tag key/value lengths.
func validateTags(tags []Tag) error {
	for _, tag := range tags {
		if tag.Key == "" || len(tag.Key) > maxTagKeyLen {
			return awserr.ErrInvalidParameter.WithMessage("Tag keys must be 1-%d characters", maxTagKeyLen)
		}
		if len(tag.Value) > maxTagValueLen {
			return awserr.ErrInvalidParameter.WithMessage("Tag values must be at most %d characters", maxTagValueLen)
		}
	}
	return nil
}

// payloadEqual reports whether a stored version carries exactly the given
// payload.
func payloadEqual(v *store.VersionRecord, secretString *string, secretBinary []byte) bool {
	if secretString != nil {
		return v.SecretString != nil && *v.SecretString == *secretString
	}
	return v.SecretBinary != nil && bytes.Equal(v.SecretBinary, secretBinary)
}

// midnightUTC truncates t to the start of its UTC day, the granularity AWS
// uses for last-accessed dates.
func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mapStoreErr translates store-level failures into API errors:
// unique-constraint violations become ResourceExistsException and APIErrors
// pass through unchanged. Any other error is returned as is; the wire layer
// (jsonutil.WriteError) renders it as an opaque InternalFailure.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *awserr.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if store.IsConstraint(err) {
		return awserr.ErrResourceExists
	}
	return err
}
