package models

import "testing"

func TestIsValidSource(t *testing.T) {
	for _, src := range []Source{SourceCrypto, SourceEquity, SourceCarbon} {
		if !IsValidSource(src) {
			t.Fatalf("%s must be valid", src)
		}
	}
	for _, src := range []Source{"", "bonds", "CRYPTO"} {
		if IsValidSource(src) {
			t.Fatalf("%q must be invalid", src)
		}
	}
}
