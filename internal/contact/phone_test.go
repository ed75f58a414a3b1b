package contact

import "testing"

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"5511999990000@s.whatsapp.net", "+5511999990000"},
		{"+55 (11) 99999-0000", "+5511999990000"},
		{"  5511999990000  ", "+5511999990000"},
		{"+5511999990000", "+5511999990000"},
		{"@s.whatsapp.net", ""},
		{"no digits", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDigitsDropsJIDSuffix(t *testing.T) {
	t.Parallel()

	if got := Digits("5511999990000@g.us"); got != "5511999990000" {
		t.Fatalf("Digits = %q", got)
	}
}
