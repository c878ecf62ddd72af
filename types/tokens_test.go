package types

import (
	"errors"
	"math"
	"testing"
)

func TestTokensAdd(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Tokens
		want    Tokens
		wantErr bool
	}{
		{"Zero plus zero", 0, 0, 0, false},
		{"Simple", 100, 200, 300, false},
		{"Max plus zero", math.MaxUint64, 0, math.MaxUint64, false},
		{"Wraps", math.MaxUint64, 1, 0, true},
		{"Wraps both large", math.MaxUint64 - 5, 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Add(tt.b)
			if tt.wantErr {
				if !errors.Is(err, ErrOverflow) {
					t.Fatalf("Add: got err %v, want ErrOverflow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Add: unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("Add: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTokensSub(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Tokens
		want    Tokens
		wantErr bool
	}{
		{"Zero minus zero", 0, 0, 0, false},
		{"Simple", 300, 200, 100, false},
		{"To zero", 100, 100, 0, false},
		{"Underflows", 100, 101, 0, true},
		{"Zero minus one", 0, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Sub(tt.b)
			if tt.wantErr {
				if !errors.Is(err, ErrOverflow) {
					t.Fatalf("Sub: got err %v, want ErrOverflow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sub: unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("Sub: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTokensMul(t *testing.T) {
	tests := []struct {
		name    string
		a       Tokens
		n       uint64
		want    Tokens
		wantErr bool
	}{
		{"Zero times anything", 0, 12345, 0, false},
		{"Anything times zero", 12345, 0, 0, false},
		{"Simple", 30, 3, 90, false},
		{"Max times one", math.MaxUint64, 1, math.MaxUint64, false},
		{"Wraps", math.MaxUint64/2 + 1, 2, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Mul(tt.n)
			if tt.wantErr {
				if !errors.Is(err, ErrOverflow) {
					t.Fatalf("Mul: got err %v, want ErrOverflow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Mul: unexpected error %v", err)
			}
			if got != tt.want {
				t.Errorf("Mul: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTokensMin(t *testing.T) {
	tests := []struct {
		name string
		a, b Tokens
		want Tokens
	}{
		{"First smaller", 50, 100, 50},
		{"Second smaller", 100, 50, 50},
		{"Equal", 100, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Min(tt.b); got != tt.want {
				t.Errorf("Min: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTokensString(t *testing.T) {
	if got := Tokens(0).String(); got != "0" {
		t.Errorf("String: got %s, want 0", got)
	}
	if got := Tokens(4900).String(); got != "4900" {
		t.Errorf("String: got %s, want 4900", got)
	}
	if got := Tokens(math.MaxUint64).String(); got != "18446744073709551615" {
		t.Errorf("String: got %s, want 18446744073709551615", got)
	}
}

func TestSaturatingAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want uint64
	}{
		{"Simple", 100, 200, 300},
		{"Zero", 0, 0, 0},
		{"Clamps", math.MaxUint64, 1, math.MaxUint64},
		{"Clamps large", math.MaxUint64 - 3, 10, math.MaxUint64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SaturatingAdd(tt.a, tt.b); got != tt.want {
				t.Errorf("SaturatingAdd: got %d, want %d", got, tt.want)
			}
		})
	}
}

func BenchmarkTokensAdd(b *testing.B) {
	a := Tokens(100)
	c := Tokens(200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = a.Add(c)
	}
}
