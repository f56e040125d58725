package frameq

import (
	"bytes"
	"testing"
)

func TestArena_RoundTrip(t *testing.T) {
	a := NewArena(8)

	first := []byte{1, 2, 3}
	second := []byte{4, 5, 6, 7}

	s1 := a.Extend(first)
	s2 := a.Extend(second)

	if got := a.Bytes(s1); !bytes.Equal(got, first) {
		t.Errorf("Bytes(s1) = %v, want %v", got, first)
	}
	if got := a.Bytes(s2); !bytes.Equal(got, second) {
		t.Errorf("Bytes(s2) = %v, want %v", got, second)
	}
	if s2.Offset != 3 {
		t.Errorf("second span offset = %d, want 3", s2.Offset)
	}
	if a.Len() != 7 {
		t.Errorf("Len() = %d, want 7", a.Len())
	}
}

func TestArena_EmptySpan(t *testing.T) {
	a := NewArena(0)

	s := a.Extend(nil)
	if !s.Empty() {
		t.Errorf("Extend(nil) span = %+v, want empty", s)
	}
	if got := a.Bytes(s); got != nil {
		t.Errorf("Bytes(empty) = %v, want nil", got)
	}
}

func TestArena_ResetRetainsStorage(t *testing.T) {
	a := NewArena(4)
	a.Extend(bytes.Repeat([]byte{9}, 100))

	a.Reset()
	if a.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", a.Len())
	}

	s := a.Extend([]byte{1, 2})
	if s.Offset != 0 {
		t.Errorf("offset after Reset = %d, want 0", s.Offset)
	}
}
