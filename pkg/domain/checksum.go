package domain

import (
	"fmt"
	"strings"
)

// Alphabet is the ordered USI symbol set. A symbol's code point is its index.
// Digits 0 and 1 and letters I and O are excluded.
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	// CodeLength is the length of a USI including the check symbol.
	CodeLength = 10
	// PayloadLength is the number of symbols covered by the checksum.
	PayloadLength = CodeLength - 1

	modulus       = len(Alphabet)
	initialFactor = 2
)

// codePoint returns the alphabet index of s, or -1 when s is not a USI symbol.
func codePoint(s byte) int {
	return strings.IndexByte(Alphabet, s)
}

// GenerateChecksum computes the Luhn mod 32 check symbol for a 9 symbol payload.
//
// Positions are visited right to left with factors 2, 1, 2, 1, ... and each
// addend is folded once in base 32. A symbol outside the alphabet is an error,
// never an arithmetic input.
func GenerateChecksum(payload string) (byte, error) {
	if len(payload) != PayloadLength {
		return 0, fmt.Errorf("payload must be %d symbols, got %d", PayloadLength, len(payload))
	}

	sum := 0
	factor := initialFactor
	for i := len(payload) - 1; i >= 0; i-- {
		cp := codePoint(payload[i])
		if cp < 0 {
			return 0, fmt.Errorf("symbol %q at position %d is not in the USI alphabet", payload[i], i)
		}
		addend := factor * cp
		if factor == initialFactor {
			factor = 1
		} else {
			factor = initialFactor
		}
		// factor <= 2 and cp < 32, so one fold always lands below 32.
		addend = addend/modulus + addend%modulus
		sum += addend
	}

	check := (modulus - sum%modulus) % modulus
	return Alphabet[check], nil
}

// ValidateChecksum reports whether code is a payload followed by its check symbol.
//
// It returns false for codes shorter than CodeLength, codes containing symbols
// outside the alphabet (including lower case), and codes whose reconstruction
// does not equal the input byte for byte.
func ValidateChecksum(code string) bool {
	if len(code) < CodeLength {
		return false
	}
	payload := code[:PayloadLength]
	check, err := GenerateChecksum(payload)
	if err != nil {
		return false
	}
	return payload+string(check) == code
}
