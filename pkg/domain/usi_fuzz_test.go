//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseUSI checks that parsing never panics and that every accepted code
// passes the checksum and round-trips.
func FuzzParseUSI(f *testing.F) {
	f.Add("")
	f.Add("23456789AA")
	f.Add("23456789AB")
	f.Add("23456789aa")
	f.Add("'; DROP TABLE users;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("23456789AA\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		usi, err := ParseUSI(input)
		if err != nil {
			return
		}
		if !ValidateChecksum(usi.String()) {
			t.Errorf("accepted %q without a valid checksum", input)
		}
		if len(usi) != CodeLength {
			t.Errorf("accepted %q with length %d", input, len(usi))
		}
		again, err := ParseUSI(usi.String())
		if err != nil || again != usi {
			t.Errorf("round-trip failed for %q: %v", input, err)
		}
	})
}

// FuzzGenerateChecksum checks that any generated check symbol validates.
func FuzzGenerateChecksum(f *testing.F) {
	f.Add("23456789A")
	f.Add("ZZZZZZZZZ")
	f.Add("abc")

	f.Fuzz(func(t *testing.T, payload string) {
		check, err := GenerateChecksum(payload)
		if err != nil {
			return
		}
		if !ValidateChecksum(payload + string(check)) {
			t.Errorf("generated check %q for %q does not validate", check, payload)
		}
	})
}
