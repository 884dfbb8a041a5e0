package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/loker/loker/internal/awserr"
	"github.com/loker/loker/internal/jsonutil"
	"github.com/loker/loker/internal/metrics"
	"github.com/loker/loker/internal/secrets"
)

// targetPrefix is the service prefix of the X-Amz-Target header.
const targetPrefix = "secretsmanager."

// handleAction is the wire-protocol entry point: it drains the body,
// verifies the SigV4 signature, and dispatches on X-Amz-Target. Signature
// failures are surfaced before any state is touched.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		jsonutil.WriteError(w, awserr.ErrMalformedHTTPRequest)
		return
	}
	if len(body) > maxBodyBytes {
		jsonutil.WriteError(w, awserr.ErrMalformedHTTPRequest.WithMessage("Request body too large"))
		return
	}

	if err := s.verifier.Verify(r, body); err != nil {
		var apiErr *awserr.APIError
		if errors.As(err, &apiErr) {
			metrics.AuthFailuresTotal.WithLabelValues(apiErr.Code).Inc()
		}
		jsonutil.WriteError(w, err)
		return
	}

	target := r.Header.Get("X-Amz-Target")
	if !strings.HasPrefix(target, targetPrefix) {
		jsonutil.WriteError(w, awserr.ErrInvalidAction)
		return
	}
	action := strings.TrimPrefix(target, targetPrefix)

	out, err := s.dispatch(r, action, body)
	if err != nil {
		status := "error"
		var apiErr *awserr.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		metrics.OperationsTotal.WithLabelValues(action, status).Inc()
		jsonutil.WriteError(w, err)
		return
	}
	metrics.OperationsTotal.WithLabelValues(action, "success").Inc()
	jsonutil.WriteResponse(w, out)
}

// dispatch routes one action to its model operation. Every operation
// returns a JSON-marshalable response body.
func (s *Server) dispatch(r *http.Request, action string, body []byte) (interface{}, error) {
	ctx := r.Context()

	switch action {
	case "CreateSecret":
		var in secrets.CreateSecretInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.CreateSecret(ctx, &in)

	case "GetSecretValue":
		var in secrets.GetSecretValueInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.GetSecretValue(ctx, &in)

	case "PutSecretValue":
		var in secrets.PutSecretValueInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.PutSecretValue(ctx, &in)

	case "DescribeSecret":
		var in secrets.DescribeSecretInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.DescribeSecret(ctx, &in)

	case "UpdateSecret":
		var in secrets.UpdateSecretInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.UpdateSecret(ctx, &in)

	case "DeleteSecret":
		var in secrets.DeleteSecretInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.DeleteSecret(ctx, &in)

	case "RestoreSecret":
		var in secrets.RestoreSecretInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.RestoreSecret(ctx, &in)

	case "TagResource":
		var in secrets.TagResourceInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		if err := s.svc.TagResource(ctx, &in); err != nil {
			return nil, err
		}
		return struct{}{}, nil

	case "UntagResource":
		var in secrets.UntagResourceInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		if err := s.svc.UntagResource(ctx, &in); err != nil {
			return nil, err
		}
		return struct{}{}, nil

	case "ListSecrets":
		var in secrets.ListSecretsInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.ListSecrets(ctx, &in)

	case "ListSecretVersionIds":
		var in secrets.ListSecretVersionIdsInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.ListSecretVersionIds(ctx, &in)

	case "GetRandomPassword":
		var in secrets.GetRandomPasswordInput
		if err := jsonutil.Decode(body, &in); err != nil {
			return nil, err
		}
		return s.svc.GetRandomPassword(&in)

	default:
		return nil, awserr.ErrInvalidAction.WithMessage("Unknown action: %s", action)
	}
}
