package payload

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		size int
		want string
	}{
		{name: "single byte", size: 1, want: "A"},
		{name: "shorter than pattern", size: 10, want: "ABCDEFGHIJ"},
		{name: "exact pattern", size: 62, want: Pattern},
		{name: "one past pattern", size: 63, want: Pattern + "A"},
		{name: "two patterns and change", size: 130, want: Pattern + Pattern + "ABCDEF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(tt.size)
			if err != nil {
				t.Fatalf("Build(%d) error = %v", tt.size, err)
			}
			if string(got) != tt.want {
				t.Errorf("Build(%d) = %q, want %q", tt.size, got, tt.want)
			}
		})
	}
}

func TestBuildLengthAndPrefixStable(t *testing.T) {
	large, err := Build(1000)
	if err != nil {
		t.Fatalf("Build(1000) error = %v", err)
	}
	for size := 1; size <= 1000; size++ {
		got, err := Build(size)
		if err != nil {
			t.Fatalf("Build(%d) error = %v", size, err)
		}
		if len(got) != size {
			t.Fatalf("len(Build(%d)) = %d", size, len(got))
		}
		if !bytes.Equal(got, large[:size]) {
			t.Fatalf("Build(%d) is not a prefix of Build(1000)", size)
		}
	}
}

func TestBuildInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := Build(size); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("Build(%d) error = %v, want ErrInvalidSize", size, err)
		}
	}
}

func TestVerify(t *testing.T) {
	sent := []byte("ABCDEF")
	if off := Verify(sent, []byte("ABCDEF")); off != -1 {
		t.Errorf("Verify(equal) = %d, want -1", off)
	}
	if off := Verify(sent, []byte("ABXDEF")); off != 2 {
		t.Errorf("Verify(mismatch) = %d, want 2", off)
	}
	if off := Verify(sent, []byte("ABC")); off != 3 {
		t.Errorf("Verify(short) = %d, want 3", off)
	}
}
