package strconvx

import "testing"

func TestAtoi(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"11", 11, false},
		{"-4", -4, false},
		{"+9", 9, false},
		{"", 0, true},
		{"1x", 0, true},
	}
	for _, c := range cases {
		got, err := Atoi(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("Atoi(%q) err = %v, wantErr %v", c.in, err, c.wantErr)
			continue
		}
		if err == nil && got != c.want {
			t.Errorf("Atoi(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseUint(t *testing.T) {
	if v, err := ParseUint("11", 16, 16); err != nil || v != 0x11 {
		t.Fatalf("ParseUint(11,16,16) = %d, %v", v, err)
	}
	if v, err := ParseUint("0431", 16, 16); err != nil || v != 0x431 {
		t.Fatalf("ParseUint(0431,16,16) = %d, %v", v, err)
	}
	if _, err := ParseUint("10000", 16, 16); err == nil {
		t.Fatal("expected range error for 0x10000 in 16 bits")
	}
	if _, err := ParseUint("zz", 16, 16); err == nil {
		t.Fatal("expected syntax error")
	}
}
