// Package auth implements AWS Signature Version 4 request verification for
// the Secrets Manager wire protocol.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loker/loker/internal/awserr"
	"github.com/loker/loker/internal/clock"
)

const (
	// signingKeyTTL is the TTL for cached signing keys (24 hours).
	signingKeyTTL = 24 * time.Hour
	// maxCacheEntries is the maximum number of entries in the signing key cache.
	maxCacheEntries = 1000
)

const (
	// algorithm is the signing algorithm identifier.
	algorithm = "AWS4-HMAC-SHA256"

	// scopeTerminator is the fixed suffix of the credential scope.
	scopeTerminator = "aws4_request"

	// service is the only service name accepted in the credential scope.
	service = "secretsmanager"

	// clockSkewTolerance is the maximum allowed clock skew.
	clockSkewTolerance = 15 * time.Minute

	// amzDateFormat is the format for X-Amz-Date values (ISO 8601 basic).
	amzDateFormat = "20060102T150405Z"

	// amzDateShort is the format for the date portion of the credential scope.
	amzDateShort = "20060102"
)

// signingKeyCacheEntry holds a cached signing key with its expiration.
type signingKeyCacheEntry struct {
	key       []byte
	expiresAt time.Time
}

// Verifier verifies AWS Signature Version 4 signed requests against the
// single configured credential.
type Verifier struct {
	// AccessKeyID is the sole accepted access key ID.
	AccessKeyID string
	// SecretAccessKey is the matching secret key.
	SecretAccessKey string
	// Clock supplies the server time for clock-skew checks.
	Clock clock.Clock

	// signingKeys caches derived signing keys. Key format: "dateStr\x00region".
	signingKeyMu sync.RWMutex
	signingKeys  map[string]signingKeyCacheEntry
}

// NewVerifier creates a Verifier for the given credential.
func NewVerifier(accessKeyID, secretAccessKey string, clk clock.Clock) *Verifier {
	if clk == nil {
		clk = clock.System{}
	}
	return &Verifier{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		Clock:           clk,
		signingKeys:     make(map[string]signingKeyCacheEntry),
	}
}

// parsedAuth holds the parsed components of an Authorization header.
type parsedAuth struct {
	AccessKeyID   string
	DateStr       string // YYYYMMDD
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

// parseAuthorizationHeader parses the AWS SigV4 Authorization header.
// Format: AWS4-HMAC-SHA256 Credential=AKID/date/region/service/aws4_request, SignedHeaders=host;..., Signature=hex
func parseAuthorizationHeader(header string) (*parsedAuth, bool) {
	if !strings.HasPrefix(header, algorithm+" ") {
		return nil, false
	}

	rest := strings.TrimPrefix(header, algorithm+" ")

	parts := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			continue
		}
		parts[strings.TrimSpace(part[:idx])] = strings.TrimSpace(part[idx+1:])
	}

	credential := parts["Credential"]
	signedHeadersStr := parts["SignedHeaders"]
	signature := parts["Signature"]
	if credential == "" || signedHeadersStr == "" || signature == "" {
		return nil, false
	}

	// Parse credential: accessKeyID/date/region/service/aws4_request
	credParts := strings.SplitN(credential, "/", 5)
	if len(credParts) != 5 || credParts[4] != scopeTerminator {
		return nil, false
	}

	return &parsedAuth{
		AccessKeyID:   credParts[0],
		DateStr:       credParts[1],
		Region:        credParts[2],
		Service:       credParts[3],
		SignedHeaders: strings.Split(signedHeadersStr, ";"),
		Signature:     signature,
	}, true
}

// Verify validates the SigV4 signature on the given request. The request
// body must be supplied separately because the caller has already drained it.
// All failures are *awserr.APIError values with HTTP status 403.
func (v *Verifier) Verify(r *http.Request, body []byte) error {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return awserr.ErrInvalidSignature.WithMessage("Missing Authorization header")
	}

	parsed, ok := parseAuthorizationHeader(authHeader)
	if !ok {
		return awserr.ErrInvalidSignature.WithMessage("Authorization header is malformed")
	}

	// The credential must be scoped to this service. The region is accepted
	// as the client sent it.
	if parsed.Service != service {
		return awserr.ErrInvalidSignature.WithMessage("Credential must be scoped to service %q", service)
	}

	if subtle.ConstantTimeCompare([]byte(parsed.AccessKeyID), []byte(v.AccessKeyID)) != 1 {
		return awserr.ErrInvalidClientTokenId
	}

	// SignedHeaders must cover host and x-amz-date.
	if !containsHeader(parsed.SignedHeaders, "host") || !containsHeader(parsed.SignedHeaders, "x-amz-date") {
		return awserr.ErrInvalidSignature.WithMessage("SignedHeaders must include host and x-amz-date")
	}

	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		return awserr.ErrSignatureDoesNotMatch.WithMessage("Missing X-Amz-Date header")
	}
	requestTime, err := time.Parse(amzDateFormat, amzDate)
	if err != nil {
		return awserr.ErrSignatureDoesNotMatch.WithMessage("X-Amz-Date is not a valid ISO 8601 basic timestamp")
	}

	now := v.Clock.Now()
	diff := now.Sub(requestTime)
	if diff < 0 {
		diff = -diff
	}
	if diff > clockSkewTolerance {
		return awserr.ErrSignatureDoesNotMatch.WithMessage("Signature expired: request timestamp is outside the allowed skew window")
	}

	if parsed.DateStr != amzDate[:8] {
		return awserr.ErrSignatureDoesNotMatch.WithMessage("Credential date does not match X-Amz-Date")
	}

	// The payload hash header is mandatory and must match the body.
	// UNSIGNED-PAYLOAD is not accepted for this service.
	contentSha := r.Header.Get("X-Amz-Content-Sha256")
	if contentSha == "" {
		return awserr.ErrSignatureDoesNotMatch.WithMessage("Missing x-amz-content-sha256 header")
	}
	bodyHash := sha256.Sum256(body)
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(bodyHash[:])), []byte(strings.ToLower(contentSha))) != 1 {
		return awserr.ErrSignatureDoesNotMatch.WithMessage("x-amz-content-sha256 does not match the request payload")
	}

	canonicalRequest := buildCanonicalRequest(r, parsed.SignedHeaders, contentSha)

	scope := parsed.DateStr + "/" + parsed.Region + "/" + parsed.Service + "/" + scopeTerminator
	stringToSign := buildStringToSign(amzDate, scope, canonicalRequest)

	signingKey := v.cachedDeriveSigningKey(parsed.DateStr, parsed.Region)
	expectedSignature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	if subtle.ConstantTimeCompare([]byte(expectedSignature), []byte(parsed.Signature)) != 1 {
		return awserr.ErrSignatureDoesNotMatch
	}

	return nil
}

// containsHeader reports whether the signed header list contains name,
// case-insensitively.
func containsHeader(headers []string, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// cachedDeriveSigningKey returns a cached signing key or derives and caches
// a new one. The cache key omits the secret because the verifier holds
// exactly one credential.
func (v *Verifier) cachedDeriveSigningKey(dateStr, region string) []byte {
	cacheKey := dateStr + "\x00" + region
	now := v.Clock.Now()

	v.signingKeyMu.RLock()
	if entry, ok := v.signingKeys[cacheKey]; ok && now.Before(entry.expiresAt) {
		v.signingKeyMu.RUnlock()
		return entry.key
	}
	v.signingKeyMu.RUnlock()

	key := deriveSigningKey(v.SecretAccessKey, dateStr, region, service)

	v.signingKeyMu.Lock()
	if len(v.signingKeys) >= maxCacheEntries {
		// Clear entire map to avoid unbounded growth.
		v.signingKeys = make(map[string]signingKeyCacheEntry)
	}
	v.signingKeys[cacheKey] = signingKeyCacheEntry{
		key:       key,
		expiresAt: now.Add(signingKeyTTL),
	}
	v.signingKeyMu.Unlock()

	return key
}

// buildCanonicalRequest builds the canonical request string.
func buildCanonicalRequest(r *http.Request, signedHeaders []string, payloadHash string) string {
	var sb strings.Builder

	sb.WriteString(r.Method)
	sb.WriteByte('\n')

	sb.WriteString(canonicalURI(r.URL.Path))
	sb.WriteByte('\n')

	sb.WriteString(canonicalQueryString(r.URL.Query()))
	sb.WriteByte('\n')

	// Canonical headers (each followed by \n).
	sb.WriteString(canonicalHeaders(r, signedHeaders))
	sb.WriteByte('\n')

	sb.WriteString(strings.Join(signedHeaders, ";"))
	sb.WriteByte('\n')

	sb.WriteString(payloadHash)

	return sb.String()
}

// buildStringToSign builds the string to sign for SigV4.
func buildStringToSign(amzDate, scope, canonicalRequest string) string {
	hash := sha256.Sum256([]byte(canonicalRequest))
	return algorithm + "\n" +
		amzDate + "\n" +
		scope + "\n" +
		hex.EncodeToString(hash[:])
}

// deriveSigningKey derives the SigV4 signing key using the HMAC chain.
func deriveSigningKey(secretKey, dateStr, region, svc string) []byte {
	dateKey := hmacSHA256([]byte("AWS4"+secretKey), dateStr)
	regionKey := hmacSHA256(dateKey, region)
	serviceKey := hmacSHA256(regionKey, svc)
	return hmacSHA256(serviceKey, scopeTerminator)
}

// canonicalURI returns the URI-encoded absolute path. Dot segments ("." and
// "..") are resolved first, then each segment is percent-encoded with
// unreserved characters kept literal. Forward slashes are NOT encoded.
// An empty path becomes "/".
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := normalizeDotSegments(strings.Split(path, "/"))
	for i, seg := range segments {
		segments[i] = URIEncode(seg, false)
	}
	out := strings.Join(segments, "/")
	if out == "" {
		return "/"
	}
	return out
}

// normalizeDotSegments resolves "." and ".." path segments. A ".." at the
// root is dropped rather than escaping above it.
func normalizeDotSegments(segments []string) []string {
	out := segments[:0:0]
	for _, seg := range segments {
		switch seg {
		case ".":
			// skip
		case "..":
			if len(out) > 1 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	return out
}

// canonicalQueryString returns the sorted, URI-encoded query string.
// Parameters with no value render as "key=".
func canonicalQueryString(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	var pairs []string
	for key, vals := range values {
		encodedKey := URIEncode(key, true)
		if len(vals) == 0 {
			pairs = append(pairs, encodedKey+"=")
		}
		for _, val := range vals {
			pairs = append(pairs, encodedKey+"="+URIEncode(val, true))
		}
	}

	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// canonicalHeaders builds the canonical headers string. Headers appear in
// the order given by the SignedHeaders list (already lexical per the AWS
// rule); each value is trimmed with quote-aware whitespace collapsing.
func canonicalHeaders(r *http.Request, signedHeaders []string) string {
	var sb strings.Builder
	for _, name := range signedHeaders {
		name = strings.ToLower(name)
		var values []string
		switch name {
		case "host":
			// Host header is often not in r.Header but in r.Host.
			host := r.Host
			if host == "" {
				host = r.Header.Get("Host")
			}
			values = []string{host}
		case "content-length":
			// Go's server promotes Content-Length out of the header map.
			if r.ContentLength >= 0 {
				values = []string{strconv.FormatInt(r.ContentLength, 10)}
			}
		default:
			values = r.Header.Values(http.CanonicalHeaderKey(name))
		}
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(trimHeaderValue(strings.Join(values, ",")))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// trimHeaderValue strips leading/trailing whitespace and collapses runs of
// spaces to a single space, but only outside double-quoted strings. AWS
// preserves whitespace inside quotes, and collapsing there is a common
// implementation bug.
func trimHeaderValue(v string) string {
	v = strings.TrimSpace(v)
	var sb strings.Builder
	sb.Grow(len(v))
	inQuotes := false
	lastWasSpace := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '"' {
			inQuotes = !inQuotes
		}
		if !inQuotes && (c == ' ' || c == '\t') {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			sb.WriteByte(' ')
			continue
		}
		lastWasSpace = false
		sb.WriteByte(c)
	}
	return sb.String()
}

// URIEncode encodes a string per AWS URI encoding rules.
// Characters A-Z, a-z, 0-9, '-', '_', '.', '~' are NOT encoded.
// If encodeSlash is false, '/' is also NOT encoded.
// All other characters are percent-encoded with uppercase hex.
func URIEncode(s string, encodeSlash bool) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIUnreserved(c) || (!encodeSlash && c == '/') {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(hexDigit(c >> 4))
			sb.WriteByte(hexDigit(c & 0x0f))
		}
	}
	return sb.String()
}

// isURIUnreserved returns true if the byte is an unreserved URI character.
func isURIUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// hexDigit returns the uppercase hex digit for a 4-bit value.
func hexDigit(b byte) byte {
	if b < 10 {
		return '0' + b
	}
	return 'A' + b - 10
}

// hmacSHA256 computes HMAC-SHA256 of the data using the given key.
func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}
