package secrets

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/loker/loker/internal/awserr"
	"github.com/loker/loker/internal/clock"
	"github.com/loker/loker/internal/store"
)

var testTime = time.Date(2024, 3, 15, 14, 30, 45, 0, time.UTC)

// newTestService creates a Service over a fresh encrypted store with a
// fixed clock.
func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), "test-passphrase")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewService(st, clock.Fixed{T: testTime}, "us-east-1")
}

// strptr returns a pointer to s.
func strptr(s string) *string { return &s }

// createSecret creates a secret with the given string value.
func createSecret(t *testing.T, svc *Service, name, value string) *CreateSecretOutput {
	t.Helper()
	out, err := svc.CreateSecret(context.Background(), &CreateSecretInput{
		Name:         name,
		SecretString: strptr(value),
	})
	if err != nil {
		t.Fatalf("CreateSecret(%s): %v", name, err)
	}
	return out
}

// wantCode asserts err is an APIError with the given code.
func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *awserr.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *awserr.APIError %s, got %T: %v", code, err, err)
	}
	if apiErr.Code != code {
		t.Fatalf("code = %s, want %s", apiErr.Code, code)
	}
}

var arnRe = regexp.MustCompile(`^arn:aws:secretsmanager:us-east-1:000000000000:secret:.+-[A-Za-z0-9]{6}$`)

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	out := createSecret(t, svc, "db/pw", "hunter2")
	if !arnRe.MatchString(out.ARN) {
		t.Errorf("ARN %q does not match the expected grammar", out.ARN)
	}
	if !strings.HasPrefix(out.ARN, "arn:aws:secretsmanager:us-east-1:000000000000:secret:db/pw-") {
		t.Errorf("ARN %q does not carry the secret name", out.ARN)
	}
	if out.VersionId == "" {
		t.Errorf("VersionId missing from CreateSecret output")
	}

	got, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("GetSecretValue: %v", err)
	}
	if got.SecretString == nil || *got.SecretString != "hunter2" {
		t.Errorf("SecretString = %v, want hunter2", got.SecretString)
	}
	if len(got.VersionStages) != 1 || got.VersionStages[0] != StageCurrent {
		t.Errorf("VersionStages = %v, want [AWSCURRENT]", got.VersionStages)
	}
	if got.ARN != out.ARN {
		t.Errorf("ARN mismatch: %q vs %q", got.ARN, out.ARN)
	}

	// Lookup by ARN resolves the same secret.
	byARN, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: out.ARN})
	if err != nil {
		t.Fatalf("GetSecretValue by ARN: %v", err)
	}
	if byARN.VersionId != got.VersionId {
		t.Errorf("version mismatch between name and ARN lookups")
	}
}

func TestCreateWithoutValue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	out, err := svc.CreateSecret(ctx, &CreateSecretInput{Name: "empty"})
	if err != nil {
		t.Fatalf("CreateSecret: %v", err)
	}
	if out.VersionId != "" {
		t.Errorf("VersionId = %q, want empty for valueless create", out.VersionId)
	}

	_, err = svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "empty"})
	wantCode(t, err, "ResourceNotFoundException")
}

func TestCreateDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	createSecret(t, svc, "db/pw", "a")

	_, err := svc.CreateSecret(ctx, &CreateSecretInput{Name: "db/pw", SecretString: strptr("b")})
	wantCode(t, err, "ResourceExistsException")

	// A soft-deleted secret blocks re-creation with a different error.
	if _, err := svc.DeleteSecret(ctx, &DeleteSecretInput{SecretId: "db/pw"}); err != nil {
		t.Fatalf("DeleteSecret: %v", err)
	}
	_, err = svc.CreateSecret(ctx, &CreateSecretInput{Name: "db/pw", SecretString: strptr("b")})
	wantCode(t, err, "InvalidRequestException")
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateSecretInput
		code string
	}{
		{"empty name", CreateSecretInput{Name: ""}, "InvalidParameterException"},
		{"bad chars", CreateSecretInput{Name: "has spaces"}, "InvalidParameterException"},
		{"too long", CreateSecretInput{Name: strings.Repeat("a", 513)}, "InvalidParameterException"},
		{"both payloads", CreateSecretInput{
			Name: "x", SecretString: strptr("a"), SecretBinary: []byte("b"),
		}, "InvalidParameterCombination"},
		{"long description", CreateSecretInput{
			Name: "x", Description: strptr(strings.Repeat("d", 2049)),
		}, "InvalidParameterException"},
		{"long tag key", CreateSecretInput{
			Name: "x", Tags: []Tag{{Key: strings.Repeat("k", 129), Value: "v"}},
		}, "InvalidParameterException"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSecret(ctx, &tt.in)
			wantCode(t, err, tt.code)
		})
	}
}

func TestPutIdempotency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createSecret(t, svc, "db/pw", "initial")

	first, err := svc.PutSecretValue(ctx, &PutSecretValueInput{
		SecretId:           "db/pw",
		ClientRequestToken: "tok-1",
		SecretString:       strptr("a"),
	})
	if err != nil {
		t.Fatalf("PutSecretValue: %v", err)
	}
	if first.VersionId != "tok-1" {
		t.Errorf("VersionId = %q, want tok-1", first.VersionId)
	}

	// Same token, same payload: no-op success with the same version.
	second, err := svc.PutSecretValue(ctx, &PutSecretValueInput{
		SecretId:           "db/pw",
		ClientRequestToken: "tok-1",
		SecretString:       strptr("a"),
	})
	if err != nil {
		t.Fatalf("replay PutSecretValue: %v", err)
	}
	if second.VersionId != first.VersionId {
		t.Errorf("replay VersionId = %q, want %q", second.VersionId, first.VersionId)
	}

	versions, err := svc.ListSecretVersionIds(ctx, &ListSecretVersionIdsInput{
		SecretId: "db/pw", IncludeDeprecated: true,
	})
	if err != nil {
		t.Fatalf("ListSecretVersionIds: %v", err)
	}
	if len(versions.Versions) != 2 {
		t.Errorf("version count = %d, want 2 (no new version on replay)", len(versions.Versions))
	}

	// Same token, different payload: conflict.
	_, err = svc.PutSecretValue(ctx, &PutSecretValueInput{
		SecretId:           "db/pw",
		ClientRequestToken: "tok-1",
		SecretString:       strptr("b"),
	})
	wantCode(t, err, "ResourceExistsException")
}

func TestStageRotation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created := createSecret(t, svc, "db/pw", "v1-value")
	v1 := created.VersionId

	put2, err := svc.PutSecretValue(ctx, &PutSecretValueInput{SecretId: "db/pw", SecretString: strptr("v2-value")})
	if err != nil {
		t.Fatalf("put v2: %v", err)
	}
	v2 := put2.VersionId

	desc, err := svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("DescribeSecret: %v", err)
	}
	assertStages(t, desc.VersionIdsToStages, v1, StagePrevious)
	assertStages(t, desc.VersionIdsToStages, v2, StageCurrent)

	put3, err := svc.PutSecretValue(ctx, &PutSecretValueInput{SecretId: "db/pw", SecretString: strptr("v3-value")})
	if err != nil {
		t.Fatalf("put v3: %v", err)
	}
	v3 := put3.VersionId

	desc, err = svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("DescribeSecret: %v", err)
	}
	if _, ok := desc.VersionIdsToStages[v1]; ok {
		t.Errorf("v1 still staged: %v", desc.VersionIdsToStages[v1])
	}
	assertStages(t, desc.VersionIdsToStages, v2, StagePrevious)
	assertStages(t, desc.VersionIdsToStages, v3, StageCurrent)

	// The dangling version is retained as history.
	versions, err := svc.ListSecretVersionIds(ctx, &ListSecretVersionIdsInput{
		SecretId: "db/pw", IncludeDeprecated: true,
	})
	if err != nil {
		t.Fatalf("ListSecretVersionIds: %v", err)
	}
	if len(versions.Versions) != 3 {
		t.Errorf("version count = %d, want 3", len(versions.Versions))
	}

	// Without IncludeDeprecated the dangling version is hidden.
	versions, err = svc.ListSecretVersionIds(ctx, &ListSecretVersionIdsInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("ListSecretVersionIds: %v", err)
	}
	if len(versions.Versions) != 2 {
		t.Errorf("staged version count = %d, want 2", len(versions.Versions))
	}
}

// assertStages asserts the version carries exactly the one given label.
func assertStages(t *testing.T, stages map[string][]string, versionID, label string) {
	t.Helper()
	labels := stages[versionID]
	if len(labels) != 1 || labels[0] != label {
		t.Errorf("stages[%s] = %v, want [%s]", versionID, labels, label)
	}
}

func TestGetByVersionIdAndStage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created := createSecret(t, svc, "db/pw", "v1-value")
	v1 := created.VersionId

	put2, err := svc.PutSecretValue(ctx, &PutSecretValueInput{SecretId: "db/pw", SecretString: strptr("v2-value")})
	if err != nil {
		t.Fatalf("put v2: %v", err)
	}

	// By explicit version id.
	got, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw", VersionId: v1})
	if err != nil {
		t.Fatalf("get by version id: %v", err)
	}
	if *got.SecretString != "v1-value" {
		t.Errorf("SecretString = %q, want v1-value", *got.SecretString)
	}

	// By stage label.
	got, err = svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw", VersionStage: StagePrevious})
	if err != nil {
		t.Fatalf("get by stage: %v", err)
	}
	if got.VersionId != v1 {
		t.Errorf("AWSPREVIOUS = %q, want %q", got.VersionId, v1)
	}

	// Agreeing id + stage.
	if _, err := svc.GetSecretValue(ctx, &GetSecretValueInput{
		SecretId: "db/pw", VersionId: put2.VersionId, VersionStage: StageCurrent,
	}); err != nil {
		t.Fatalf("agreeing id+stage: %v", err)
	}

	// Disagreeing id + stage.
	_, err = svc.GetSecretValue(ctx, &GetSecretValueInput{
		SecretId: "db/pw", VersionId: v1, VersionStage: StageCurrent,
	})
	wantCode(t, err, "ResourceNotFoundException")

	// Unknown version id.
	_, err = svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw", VersionId: "nope"})
	wantCode(t, err, "ResourceNotFoundException")

	// Unknown stage.
	_, err = svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw", VersionStage: "AWSPENDING"})
	wantCode(t, err, "ResourceNotFoundException")
}

func TestLastAccessedDayGranularity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createSecret(t, svc, "db/pw", "v")

	if _, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw"}); err != nil {
		t.Fatalf("GetSecretValue: %v", err)
	}

	desc, err := svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("DescribeSecret: %v", err)
	}
	if desc.LastAccessedDate == nil {
		t.Fatalf("LastAccessedDate missing after read")
	}
	got := time.Time(*desc.LastAccessedDate)
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("LastAccessedDate = %v, want midnight UTC %v", got, want)
	}
}

func TestSoftDeleteRestore(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createSecret(t, svc, "db/pw", "v")

	del, err := svc.DeleteSecret(ctx, &DeleteSecretInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("DeleteSecret: %v", err)
	}
	wantDeletion := testTime.AddDate(0, 0, 30)
	if !time.Time(del.DeletionDate).Equal(wantDeletion) {
		t.Errorf("DeletionDate = %v, want %v", time.Time(del.DeletionDate), wantDeletion)
	}

	// Value reads fail while soft-deleted.
	_, err = svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw"})
	wantCode(t, err, "ResourceNotFoundException")

	// Mutations fail while soft-deleted.
	_, err = svc.PutSecretValue(ctx, &PutSecretValueInput{SecretId: "db/pw", SecretString: strptr("x")})
	wantCode(t, err, "ResourceNotFoundException")
	_, err = svc.UpdateSecret(ctx, &UpdateSecretInput{SecretId: "db/pw", Description: strptr("x")})
	wantCode(t, err, "InvalidRequestException")
	err = svc.TagResource(ctx, &TagResourceInput{SecretId: "db/pw", Tags: []Tag{{Key: "k", Value: "v"}}})
	wantCode(t, err, "InvalidRequestException")

	// DescribeSecret still works and reports the deletion.
	desc, err := svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("DescribeSecret on deleted: %v", err)
	}
	if desc.DeletedDate == nil {
		t.Errorf("DeletedDate missing on soft-deleted secret")
	}

	// Delete is idempotent while soft-deleted.
	again, err := svc.DeleteSecret(ctx, &DeleteSecretInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("repeat DeleteSecret: %v", err)
	}
	if !time.Time(again.DeletionDate).Equal(wantDeletion) {
		t.Errorf("repeat DeletionDate = %v, want %v", time.Time(again.DeletionDate), wantDeletion)
	}

	// Restore brings the secret back with its metadata intact.
	if _, err := svc.RestoreSecret(ctx, &RestoreSecretInput{SecretId: "db/pw"}); err != nil {
		t.Fatalf("RestoreSecret: %v", err)
	}
	restored, err := svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("DescribeSecret after restore: %v", err)
	}
	if restored.DeletedDate != nil {
		t.Errorf("DeletedDate still set after restore")
	}
	if restored.Name != desc.Name || restored.ARN != desc.ARN {
		t.Errorf("metadata changed across delete/restore")
	}
	if _, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw"}); err != nil {
		t.Fatalf("GetSecretValue after restore: %v", err)
	}

	// Restoring a live secret is a no-op success.
	if _, err := svc.RestoreSecret(ctx, &RestoreSecretInput{SecretId: "db/pw"}); err != nil {
		t.Fatalf("RestoreSecret on live secret: %v", err)
	}
}

func TestForceDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createSecret(t, svc, "db/pw", "v")

	force := true
	window := int64(7)
	_, err := svc.DeleteSecret(ctx, &DeleteSecretInput{
		SecretId:                   "db/pw",
		ForceDeleteWithoutRecovery: &force,
		RecoveryWindowInDays:       &window,
	})
	wantCode(t, err, "InvalidParameterCombination")

	if _, err := svc.DeleteSecret(ctx, &DeleteSecretInput{
		SecretId:                   "db/pw",
		ForceDeleteWithoutRecovery: &force,
	}); err != nil {
		t.Fatalf("force DeleteSecret: %v", err)
	}

	// Hard-deleted: not even describable.
	_, err = svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	wantCode(t, err, "ResourceNotFoundException")

	// The name is free for reuse.
	createSecret(t, svc, "db/pw", "fresh")
}

func TestRecoveryWindowBounds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createSecret(t, svc, "db/pw", "v")

	for _, days := range []int64{6, 31, 0, -1} {
		window := days
		_, err := svc.DeleteSecret(ctx, &DeleteSecretInput{SecretId: "db/pw", RecoveryWindowInDays: &window})
		wantCode(t, err, "InvalidParameterException")
	}

	window := int64(7)
	out, err := svc.DeleteSecret(ctx, &DeleteSecretInput{SecretId: "db/pw", RecoveryWindowInDays: &window})
	if err != nil {
		t.Fatalf("DeleteSecret: %v", err)
	}
	want := testTime.AddDate(0, 0, 7)
	if !time.Time(out.DeletionDate).Equal(want) {
		t.Errorf("DeletionDate = %v, want %v", time.Time(out.DeletionDate), want)
	}
}

func TestUpdateSecret(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created := createSecret(t, svc, "db/pw", "v1-value")

	// Description-only update creates no version.
	out, err := svc.UpdateSecret(ctx, &UpdateSecretInput{SecretId: "db/pw", Description: strptr("primary database password")})
	if err != nil {
		t.Fatalf("UpdateSecret: %v", err)
	}
	if out.VersionId != "" {
		t.Errorf("VersionId = %q, want empty for description-only update", out.VersionId)
	}

	desc, err := svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("DescribeSecret: %v", err)
	}
	if desc.Description != "primary database password" {
		t.Errorf("Description = %q", desc.Description)
	}

	// Supplying material rotates AWSCURRENT like PutSecretValue.
	out, err = svc.UpdateSecret(ctx, &UpdateSecretInput{SecretId: "db/pw", SecretString: strptr("v2-value")})
	if err != nil {
		t.Fatalf("UpdateSecret with value: %v", err)
	}
	if out.VersionId == "" {
		t.Errorf("VersionId missing for material update")
	}

	got, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("GetSecretValue: %v", err)
	}
	if *got.SecretString != "v2-value" {
		t.Errorf("SecretString = %q, want v2-value", *got.SecretString)
	}
	prev, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw", VersionStage: StagePrevious})
	if err != nil {
		t.Fatalf("GetSecretValue AWSPREVIOUS: %v", err)
	}
	if prev.VersionId != created.VersionId {
		t.Errorf("AWSPREVIOUS = %q, want original %q", prev.VersionId, created.VersionId)
	}
}

func TestTagging(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createSecret(t, svc, "db/pw", "v")

	err := svc.TagResource(ctx, &TagResourceInput{
		SecretId: "db/pw",
		Tags:     []Tag{{Key: "env", Value: "v1"}, {Key: "team", Value: "core"}},
	})
	if err != nil {
		t.Fatalf("TagResource: %v", err)
	}

	// Upsert replaces, never duplicates.
	err = svc.TagResource(ctx, &TagResourceInput{SecretId: "db/pw", Tags: []Tag{{Key: "env", Value: "v2"}}})
	if err != nil {
		t.Fatalf("TagResource upsert: %v", err)
	}

	desc, err := svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("DescribeSecret: %v", err)
	}
	if len(desc.Tags) != 2 {
		t.Fatalf("tag count = %d, want 2", len(desc.Tags))
	}
	// Tags are ordered by key: env, team.
	if desc.Tags[0].Key != "env" || desc.Tags[0].Value != "v2" {
		t.Errorf("tags[0] = %+v, want env=v2", desc.Tags[0])
	}

	// Keys are case-sensitive: "Env" is a distinct tag.
	err = svc.TagResource(ctx, &TagResourceInput{SecretId: "db/pw", Tags: []Tag{{Key: "Env", Value: "other"}}})
	if err != nil {
		t.Fatalf("TagResource case-sensitive: %v", err)
	}
	desc, _ = svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	if len(desc.Tags) != 3 {
		t.Errorf("tag count = %d, want 3 (case-sensitive keys)", len(desc.Tags))
	}

	// Untag removes by key; absent keys are ignored.
	err = svc.UntagResource(ctx, &UntagResourceInput{SecretId: "db/pw", TagKeys: []string{"env", "missing"}})
	if err != nil {
		t.Fatalf("UntagResource: %v", err)
	}
	desc, _ = svc.DescribeSecret(ctx, &DescribeSecretInput{SecretId: "db/pw"})
	if len(desc.Tags) != 2 {
		t.Errorf("tag count after untag = %d, want 2", len(desc.Tags))
	}
}

func TestBinarySecret(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	payload := []byte{0x00, 0x01, 0xde, 0xad, 0xbe, 0xef}
	_, err := svc.CreateSecret(ctx, &CreateSecretInput{Name: "bin", SecretBinary: payload})
	if err != nil {
		t.Fatalf("CreateSecret: %v", err)
	}

	got, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "bin"})
	if err != nil {
		t.Fatalf("GetSecretValue: %v", err)
	}
	if got.SecretString != nil {
		t.Errorf("SecretString should be nil for binary secret")
	}
	if string(got.SecretBinary) != string(payload) {
		t.Errorf("SecretBinary = %v, want %v", got.SecretBinary, payload)
	}
}

func TestListSecrets(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"app/a", "app/b", "app/c", "zed"} {
		createSecret(t, svc, name, "v")
	}
	if _, err := svc.DeleteSecret(ctx, &DeleteSecretInput{SecretId: "zed"}); err != nil {
		t.Fatalf("DeleteSecret: %v", err)
	}

	out, err := svc.ListSecrets(ctx, &ListSecretsInput{})
	if err != nil {
		t.Fatalf("ListSecrets: %v", err)
	}
	if len(out.SecretList) != 3 {
		t.Errorf("live count = %d, want 3", len(out.SecretList))
	}

	out, err = svc.ListSecrets(ctx, &ListSecretsInput{IncludePlannedDeletion: true})
	if err != nil {
		t.Fatalf("ListSecrets include deleted: %v", err)
	}
	if len(out.SecretList) != 4 {
		t.Errorf("full count = %d, want 4", len(out.SecretList))
	}

	// Pagination walks the whole set without overlap.
	var names []string
	token := ""
	for {
		out, err := svc.ListSecrets(ctx, &ListSecretsInput{MaxResults: 2, NextToken: token})
		if err != nil {
			t.Fatalf("ListSecrets page: %v", err)
		}
		for _, e := range out.SecretList {
			names = append(names, e.Name)
		}
		if out.NextToken == "" {
			break
		}
		token = out.NextToken
	}
	if len(names) != 3 {
		t.Errorf("paginated names = %v, want 3 entries", names)
	}

	// Name filter narrows by prefix.
	out, err = svc.ListSecrets(ctx, &ListSecretsInput{
		Filters: []Filter{{Key: "name", Values: []string{"app/"}}},
	})
	if err != nil {
		t.Fatalf("ListSecrets filtered: %v", err)
	}
	if len(out.SecretList) != 3 {
		t.Errorf("filtered count = %d, want 3", len(out.SecretList))
	}

	// Bad pagination token.
	_, err = svc.ListSecrets(ctx, &ListSecretsInput{NextToken: "garbage"})
	wantCode(t, err, "InvalidNextTokenException")
}

func TestGetRandomPassword(t *testing.T) {
	svc := newTestService(t)

	out, err := svc.GetRandomPassword(&GetRandomPasswordInput{})
	if err != nil {
		t.Fatalf("GetRandomPassword: %v", err)
	}
	if len(out.RandomPassword) != 32 {
		t.Errorf("default length = %d, want 32", len(out.RandomPassword))
	}

	out, err = svc.GetRandomPassword(&GetRandomPasswordInput{
		PasswordLength:     64,
		ExcludePunctuation: true,
		ExcludeUppercase:   true,
	})
	if err != nil {
		t.Fatalf("GetRandomPassword restricted: %v", err)
	}
	if len(out.RandomPassword) != 64 {
		t.Errorf("length = %d, want 64", len(out.RandomPassword))
	}
	for _, c := range out.RandomPassword {
		if strings.ContainsRune(uppercaseChars+punctuationChars, c) {
			t.Errorf("excluded character %q present", c)
		}
	}

	// RequireEachIncludedType places one of each class.
	out, err = svc.GetRandomPassword(&GetRandomPasswordInput{PasswordLength: 8})
	if err != nil {
		t.Fatalf("GetRandomPassword: %v", err)
	}
	for _, class := range []string{uppercaseChars, lowercaseChars, numberChars, punctuationChars} {
		if !strings.ContainsAny(out.RandomPassword, class) {
			t.Errorf("password %q missing a required class", out.RandomPassword)
		}
	}

	_, err = svc.GetRandomPassword(&GetRandomPasswordInput{PasswordLength: 5000})
	wantCode(t, err, "InvalidParameterException")

	_, err = svc.GetRandomPassword(&GetRandomPasswordInput{
		ExcludeUppercase: true, ExcludeLowercase: true, ExcludeNumbers: true, ExcludePunctuation: true,
	})
	wantCode(t, err, "InvalidParameterException")
}

func TestExplicitStageLabels(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createSecret(t, svc, "db/pw", "v1")

	// Attach a custom label; AWSCURRENT must not move.
	out, err := svc.PutSecretValue(ctx, &PutSecretValueInput{
		SecretId:      "db/pw",
		SecretString:  strptr("pending"),
		VersionStages: []string{"AWSPENDING"},
	})
	if err != nil {
		t.Fatalf("PutSecretValue AWSPENDING: %v", err)
	}

	cur, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw"})
	if err != nil {
		t.Fatalf("GetSecretValue: %v", err)
	}
	if *cur.SecretString != "v1" {
		t.Errorf("AWSCURRENT moved to %q", *cur.SecretString)
	}

	pending, err := svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw", VersionStage: "AWSPENDING"})
	if err != nil {
		t.Fatalf("GetSecretValue AWSPENDING: %v", err)
	}
	if pending.VersionId != out.VersionId {
		t.Errorf("AWSPENDING on %q, want %q", pending.VersionId, out.VersionId)
	}

	// Moving a custom label detaches it from its old holder.
	moved, err := svc.PutSecretValue(ctx, &PutSecretValueInput{
		SecretId:      "db/pw",
		SecretString:  strptr("pending-2"),
		VersionStages: []string{"AWSPENDING"},
	})
	if err != nil {
		t.Fatalf("move AWSPENDING: %v", err)
	}
	pending, err = svc.GetSecretValue(ctx, &GetSecretValueInput{SecretId: "db/pw", VersionStage: "AWSPENDING"})
	if err != nil {
		t.Fatalf("GetSecretValue AWSPENDING: %v", err)
	}
	if pending.VersionId != moved.VersionId {
		t.Errorf("AWSPENDING on %q, want %q", pending.VersionId, moved.VersionId)
	}
}
