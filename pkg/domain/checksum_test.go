package domain

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hand-computed vectors. For payload 23456789A, right to left:
// A(8)*2=16, 9(7)*1=7, 8(6)*2=12, 7(5)*1=5, 6(4)*2=8, 5(3)*1=3, 4(2)*2=4, 3(1)*1=1, 2(0)*2=0.
// Sum 56, 56 mod 32 = 24, (32-24) mod 32 = 8 -> 'A'.
// For ZZZZZZZZZ every doubled 31 folds to 1+30=31, so the sum is 9*31=279,
// 279 mod 32 = 23, 32-23 = 9 -> 'B'.
var checksumVectors = []struct {
	payload string
	check   byte
}{
	{"222222222", '2'},
	{"23456789A", 'A'},
	{"ZZZZZZZZZ", 'B'},
	{"BNGH7C75F", 'N'},
	{"XYZ234567", 'J'},
	{"3AXDSH9HF", 'T'},
}

func TestGenerateChecksum_KnownVectors(t *testing.T) {
	for _, tt := range checksumVectors {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := GenerateChecksum(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, string(tt.check), string(got))
		})
	}
}

func TestAlphabet_Invariants(t *testing.T) {
	assert.Len(t, Alphabet, 32)
	for _, excluded := range []string{"0", "1", "I", "O"} {
		assert.NotContains(t, Alphabet, excluded)
	}
	assert.Equal(t, 0, codePoint('2'))
	assert.Equal(t, 7, codePoint('9'))
	assert.Equal(t, 8, codePoint('A'))
	assert.Equal(t, 31, codePoint('Z'))
	assert.Equal(t, -1, codePoint('a'))
}

func TestGenerateChecksum_RejectsBadPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"too short", "2345678"},
		{"too long", "23456789AB"},
		{"excluded digit", "234567890"},
		{"excluded letter", "2345678IA"},
		{"lower case", "23456789a"},
		{"punctuation", "2345678-A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateChecksum(tt.payload)
			assert.Error(t, err)
		})
	}
}

func TestGenerateChecksum_Deterministic(t *testing.T) {
	for _, payload := range samplePayloads(50) {
		first, err := GenerateChecksum(payload)
		require.NoError(t, err)
		second, err := GenerateChecksum(payload)
		require.NoError(t, err)
		assert.Equal(t, first, second, "payload %s", payload)
	}
}

func TestValidateChecksum_RoundTrip(t *testing.T) {
	for _, payload := range samplePayloads(200) {
		check, err := GenerateChecksum(payload)
		require.NoError(t, err)
		assert.True(t, ValidateChecksum(payload+string(check)), "payload %s", payload)
	}
}

func TestValidateChecksum_DetectsSingleSubstitution(t *testing.T) {
	for _, payload := range samplePayloads(25) {
		check, err := GenerateChecksum(payload)
		require.NoError(t, err)
		code := payload + string(check)

		for i := 0; i < CodeLength; i++ {
			for j := 0; j < len(Alphabet); j++ {
				if Alphabet[j] == code[i] {
					continue
				}
				mutated := code[:i] + string(Alphabet[j]) + code[i+1:]
				assert.False(t, ValidateChecksum(mutated), "substitution %s -> %s accepted", code, mutated)
			}
		}
	}
}

func TestValidateChecksum_Guards(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"nine symbols", "23456789A"},
		{"one symbol", "2"},
		{"trailing character", "23456789AA2"},
		{"lower case payload", "23456789aA"},
		{"lower case check", "23456789Aa"},
		{"symbol outside alphabet", "2345678OAA"},
		{"wrong check symbol", "23456789AB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, ValidateChecksum(tt.code))
			})
		})
	}
}

func TestValidateChecksum_AcceptsKnownCodes(t *testing.T) {
	for _, tt := range checksumVectors {
		assert.True(t, ValidateChecksum(tt.payload+string(tt.check)))
	}
}

// samplePayloads draws n payloads from a fixed seed so failures are reproducible.
func samplePayloads(n int) []string {
	rng := rand.New(rand.NewPCG(20150101, 32))
	out := make([]string, 0, n)
	for range n {
		var b strings.Builder
		for range PayloadLength {
			b.WriteByte(Alphabet[rng.IntN(len(Alphabet))])
		}
		out = append(out, b.String())
	}
	return out
}
