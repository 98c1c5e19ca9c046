package app

import (
	"strings"
	"testing"
)

func TestGenerateToken_LengthAndAlphabet(t *testing.T) {
	for _, n := range []int{1, 8, SessionTokenLength} {
		tok := GenerateToken(n)
		if len(tok) != n {
			t.Errorf("GenerateToken(%d) returned %d characters", n, len(tok))
		}
		for _, c := range tok {
			if !strings.ContainsRune(tokenAlphabet, c) {
				t.Errorf("token contains %q outside the alphabet", c)
			}
		}
	}
}

func TestGenerateToken_Distinct(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := GenerateToken(SessionTokenLength)
		if seen[tok] {
			t.Fatalf("duplicate token %q after %d draws", tok, i)
		}
		seen[tok] = true
	}
}

func TestHashPassword(t *testing.T) {
	h1 := HashPassword("pw123456", "salt-a")
	h2 := HashPassword("pw123456", "salt-a")
	if h1 != h2 {
		t.Error("hash is not deterministic for identical inputs")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(h1))
	}
	if HashPassword("pw123456", "salt-b") == h1 {
		t.Error("different salts produced the same hash")
	}
	if HashPassword("other-pw", "salt-a") == h1 {
		t.Error("different passwords produced the same hash")
	}
}
