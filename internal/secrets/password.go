package secrets

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/loker/loker/internal/awserr"
)

const (
	defaultPasswordLength = 32
	maxPasswordLength     = 4096

	uppercaseChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowercaseChars   = "abcdefghijklmnopqrstuvwxyz"
	numberChars      = "0123456789"
	punctuationChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// GetRandomPassword generates a random password from the requested
// character classes using crypto/rand.
func (s *Service) GetRandomPassword(in *GetRandomPasswordInput) (*GetRandomPasswordOutput, error) {
	length := in.PasswordLength
	if length == 0 {
		length = defaultPasswordLength
	}
	if length < 1 || length > maxPasswordLength {
		return nil, awserr.ErrInvalidParameter.WithMessage(
			"PasswordLength must be between 1 and %d", maxPasswordLength)
	}

	var classes []string
	if !in.ExcludeUppercase {
		classes = append(classes, uppercaseChars)
	}
	if !in.ExcludeLowercase {
		classes = append(classes, lowercaseChars)
	}
	if !in.ExcludeNumbers {
		classes = append(classes, numberChars)
	}
	if !in.ExcludePunctuation {
		classes = append(classes, punctuationChars)
	}
	if in.IncludeSpace {
		classes = append(classes, " ")
	}

	// Remove excluded characters from each class.
	for i, class := range classes {
		if in.ExcludeCharacters != "" {
			classes[i] = stripChars(class, in.ExcludeCharacters)
		}
	}
	var nonEmpty []string
	for _, class := range classes {
		if class != "" {
			nonEmpty = append(nonEmpty, class)
		}
	}
	if len(nonEmpty) == 0 {
		return nil, awserr.ErrInvalidParameter.WithMessage(
			"The exclusions leave no characters to build a password from")
	}

	alphabet := strings.Join(nonEmpty, "")
	out := make([]byte, length)
	for i := range out {
		c, err := randomChar(alphabet)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}

	// RequireEachIncludedType defaults to true: plant one character from
	// each class at a distinct random position.
	require := in.RequireEachIncludedType == nil || *in.RequireEachIncludedType
	if require && int64(len(nonEmpty)) <= length {
		positions, err := distinctPositions(len(nonEmpty), int(length))
		if err != nil {
			return nil, err
		}
		for i, class := range nonEmpty {
			c, err := randomChar(class)
			if err != nil {
				return nil, err
			}
			out[positions[i]] = c
		}
	}

	return &GetRandomPasswordOutput{RandomPassword: string(out)}, nil
}

// stripChars removes every byte of cut from s.
func stripChars(s, cut string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(cut, rune(s[i])) {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// randomChar picks a uniformly random byte from alphabet.
func randomChar(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("generating random character: %w", err)
	}
	return alphabet[n.Int64()], nil
}

// distinctPositions picks count distinct random indexes in [0, length).
func distinctPositions(count, length int) ([]int, error) {
	seen := make(map[int]bool, count)
	out := make([]int, 0, count)
	for len(out) < count {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(length)))
		if err != nil {
			return nil, fmt.Errorf("generating random position: %w", err)
		}
		idx := int(n.Int64())
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out, nil
}
