package util

import "testing"

func TestNormalizeCanvasID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"long form", "72360000006062820", "6062820"},
		{"long form all padding", "72360000000000007", "7"},
		{"long form zero id", "72360000000000000", "0"},
		{"short id untouched", "6062820", "6062820"},
		{"wrong prefix", "99990000006062820", "99990000006062820"},
		{"too short", "7236000062820", "7236000062820"},
		{"too long", "723600000060628201", "723600000060628201"},
		{"non numeric tail", "7236000000606282x", "7236000000606282x"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeCanvasID(tt.in); got != tt.want {
				t.Errorf("NormalizeCanvasID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeCanvasIDIdempotent(t *testing.T) {
	ids := []string{"72360000006062820", "6062820", "72360000000000007"}
	for _, id := range ids {
		once := NormalizeCanvasID(id)
		if twice := NormalizeCanvasID(once); twice != once {
			t.Errorf("NormalizeCanvasID not idempotent for %q: %q then %q", id, once, twice)
		}
	}
}
