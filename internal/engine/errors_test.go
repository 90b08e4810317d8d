package engine

import "testing"

func TestInsufficientCreditsError_Message(t *testing.T) {
	err := &InsufficientCreditsError{Needed: 5, Available: 2}
	want := "Insufficient credits. You need 5 credits but only have 2"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestParseInsufficientCredits(t *testing.T) {
	// the typed error survives a round trip through its own message
	parsed, ok := ParseInsufficientCredits((&InsufficientCreditsError{Needed: 12, Available: 3}).Error())
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if parsed.Needed != 12 || parsed.Available != 3 {
		t.Errorf("parsed = %+v", parsed)
	}

	// a billing collaborator wrapping the message still parses
	parsed, ok = ParseInsufficientCredits(`billing refused: Insufficient credits. You need 7 credits but only have 0 (account acct_1)`)
	if !ok || parsed.Needed != 7 || parsed.Available != 0 {
		t.Errorf("parsed = %+v, ok = %v", parsed, ok)
	}

	if _, ok := ParseInsufficientCredits("model overloaded"); ok {
		t.Error("unrelated message must not parse")
	}
}
