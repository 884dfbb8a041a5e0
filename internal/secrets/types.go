package secrets

import "github.com/loker/loker/internal/jsonutil"

// Tag is a key/value pair attached to a secret.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Filter narrows a ListSecrets call.
type Filter struct {
	Key    string   `json:"Key"`
	Values []string `json:"Values"`
}

// CreateSecretInput is the request body for CreateSecret.
type CreateSecretInput struct {
	Name               string  `json:"Name"`
	Description        *string `json:"Description"`
	ClientRequestToken string  `json:"ClientRequestToken"`
	SecretString       *string `json:"SecretString"`
	SecretBinary       []byte  `json:"SecretBinary"`
	Tags               []Tag   `json:"Tags"`
}

// CreateSecretOutput is the response body for CreateSecret. VersionId is
// omitted when the secret was created without an initial value.
type CreateSecretOutput struct {
	ARN       string `json:"ARN"`
	Name      string `json:"Name"`
	VersionId string `json:"VersionId,omitempty"`
}

// PutSecretValueInput is the request body for PutSecretValue.
type PutSecretValueInput struct {
	SecretId           string   `json:"SecretId"`
	ClientRequestToken string   `json:"ClientRequestToken"`
	SecretString       *string  `json:"SecretString"`
	SecretBinary       []byte   `json:"SecretBinary"`
	VersionStages      []string `json:"VersionStages"`
}

// PutSecretValueOutput is the response body for PutSecretValue.
type PutSecretValueOutput struct {
	ARN           string   `json:"ARN"`
	Name          string   `json:"Name"`
	VersionId     string   `json:"VersionId"`
	VersionStages []string `json:"VersionStages"`
}

// GetSecretValueInput is the request body for GetSecretValue.
type GetSecretValueInput struct {
	SecretId     string `json:"SecretId"`
	VersionId    string `json:"VersionId"`
	VersionStage string `json:"VersionStage"`
}

// GetSecretValueOutput is the response body for GetSecretValue. Exactly one
// of SecretString / SecretBinary is present.
type GetSecretValueOutput struct {
	ARN           string             `json:"ARN"`
	Name          string             `json:"Name"`
	VersionId     string             `json:"VersionId"`
	SecretString  *string            `json:"SecretString,omitempty"`
	SecretBinary  []byte             `json:"SecretBinary,omitempty"`
	VersionStages []string           `json:"VersionStages"`
	CreatedDate   jsonutil.Timestamp `json:"CreatedDate"`
}

// DescribeSecretInput is the request body for DescribeSecret.
type DescribeSecretInput struct {
	SecretId string `json:"SecretId"`
}

// DescribeSecretOutput is the response body for DescribeSecret. It carries
// metadata only, never secret material.
type DescribeSecretOutput struct {
	ARN                string              `json:"ARN"`
	Name               string              `json:"Name"`
	Description        string              `json:"Description,omitempty"`
	CreatedDate        jsonutil.Timestamp  `json:"CreatedDate"`
	LastChangedDate    jsonutil.Timestamp  `json:"LastChangedDate"`
	LastAccessedDate   *jsonutil.Timestamp `json:"LastAccessedDate,omitempty"`
	DeletedDate        *jsonutil.Timestamp `json:"DeletedDate,omitempty"`
	VersionIdsToStages map[string][]string `json:"VersionIdsToStages,omitempty"`
	Tags               []Tag               `json:"Tags,omitempty"`
}

// UpdateSecretInput is the request body for UpdateSecret.
type UpdateSecretInput struct {
	SecretId           string  `json:"SecretId"`
	ClientRequestToken string  `json:"ClientRequestToken"`
	Description        *string `json:"Description"`
	SecretString       *string `json:"SecretString"`
	SecretBinary       []byte  `json:"SecretBinary"`
}

// UpdateSecretOutput is the response body for UpdateSecret. VersionId is
// present only when new secret material was supplied.
type UpdateSecretOutput struct {
	ARN       string `json:"ARN"`
	Name      string `json:"Name"`
	VersionId string `json:"VersionId,omitempty"`
}

// DeleteSecretInput is the request body for DeleteSecret.
type DeleteSecretInput struct {
	SecretId                   string `json:"SecretId"`
	RecoveryWindowInDays       *int64 `json:"RecoveryWindowInDays"`
	ForceDeleteWithoutRecovery *bool  `json:"ForceDeleteWithoutRecovery"`
}

// DeleteSecretOutput is the response body for DeleteSecret.
type DeleteSecretOutput struct {
	ARN          string             `json:"ARN"`
	Name         string             `json:"Name"`
	DeletionDate jsonutil.Timestamp `json:"DeletionDate"`
}

// RestoreSecretInput is the request body for RestoreSecret.
type RestoreSecretInput struct {
	SecretId string `json:"SecretId"`
}

// RestoreSecretOutput is the response body for RestoreSecret.
type RestoreSecretOutput struct {
	ARN  string `json:"ARN"`
	Name string `json:"Name"`
}

// TagResourceInput is the request body for TagResource.
type TagResourceInput struct {
	SecretId string `json:"SecretId"`
	Tags     []Tag  `json:"Tags"`
}

// UntagResourceInput is the request body for UntagResource.
type UntagResourceInput struct {
	SecretId string   `json:"SecretId"`
	TagKeys  []string `json:"TagKeys"`
}

// ListSecretsInput is the request body for ListSecrets.
type ListSecretsInput struct {
	MaxResults             int32    `json:"MaxResults"`
	NextToken              string   `json:"NextToken"`
	IncludePlannedDeletion bool     `json:"IncludePlannedDeletion"`
	Filters                []Filter `json:"Filters"`
}

// SecretListEntry is one element of ListSecrets output.
type SecretListEntry struct {
	ARN                    string              `json:"ARN"`
	Name                   string              `json:"Name"`
	Description            string              `json:"Description,omitempty"`
	CreatedDate            jsonutil.Timestamp  `json:"CreatedDate"`
	LastChangedDate        jsonutil.Timestamp  `json:"LastChangedDate"`
	LastAccessedDate       *jsonutil.Timestamp `json:"LastAccessedDate,omitempty"`
	DeletedDate            *jsonutil.Timestamp `json:"DeletedDate,omitempty"`
	SecretVersionsToStages map[string][]string `json:"SecretVersionsToStages,omitempty"`
	Tags                   []Tag               `json:"Tags,omitempty"`
}

// ListSecretsOutput is the response body for ListSecrets.
type ListSecretsOutput struct {
	SecretList []SecretListEntry `json:"SecretList"`
	NextToken  string            `json:"NextToken,omitempty"`
}

// ListSecretVersionIdsInput is the request body for ListSecretVersionIds.
type ListSecretVersionIdsInput struct {
	SecretId          string `json:"SecretId"`
	IncludeDeprecated bool   `json:"IncludeDeprecated"`
}

// SecretVersionsListEntry is one element of ListSecretVersionIds output.
type SecretVersionsListEntry struct {
	VersionId        string              `json:"VersionId"`
	VersionStages    []string            `json:"VersionStages,omitempty"`
	CreatedDate      jsonutil.Timestamp  `json:"CreatedDate"`
	LastAccessedDate *jsonutil.Timestamp `json:"LastAccessedDate,omitempty"`
}

// ListSecretVersionIdsOutput is the response body for ListSecretVersionIds.
type ListSecretVersionIdsOutput struct {
	ARN      string                    `json:"ARN"`
	Name     string                    `json:"Name"`
	Versions []SecretVersionsListEntry `json:"Versions"`
}

// GetRandomPasswordInput is the request body for GetRandomPassword.
type GetRandomPasswordInput struct {
	PasswordLength          int64  `json:"PasswordLength"`
	ExcludeCharacters       string `json:"ExcludeCharacters"`
	ExcludeNumbers          bool   `json:"ExcludeNumbers"`
	ExcludePunctuation      bool   `json:"ExcludePunctuation"`
	ExcludeUppercase        bool   `json:"ExcludeUppercase"`
	ExcludeLowercase        bool   `json:"ExcludeLowercase"`
	IncludeSpace            bool   `json:"IncludeSpace"`
	RequireEachIncludedType *bool  `json:"RequireEachIncludedType"`
}

// GetRandomPasswordOutput is the response body for GetRandomPassword.
type GetRandomPasswordOutput struct {
	RandomPassword string `json:"RandomPassword"`
}
