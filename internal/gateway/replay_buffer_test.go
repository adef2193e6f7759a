package gateway

import "testing"

func TestReplayBuffer_Since(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := uint64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.Since(7)
	if len(got) != 3 {
		t.Fatalf("Since(7): expected 3, got %d", len(got))
	}
	for i, e := range got {
		if want := uint64(i) + 8; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
	if n := len(rb.Since(10)); n != 0 {
		t.Errorf("Since(latest) should be empty, got %d", n)
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := uint64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	if rb.Oldest() != 4 {
		t.Errorf("Oldest() = %d, want 4", rb.Oldest())
	}
	got := rb.Since(0)
	if len(got) != 5 || got[0].Seq != 4 || got[4].Seq != 8 {
		t.Fatalf("Since(0) after wrap: %+v", got)
	}
}

func TestReplayBuffer_ExactFill(t *testing.T) {
	rb := NewReplayBuffer(3)
	for i := uint64(1); i <= 3; i++ {
		rb.Push(i, nil)
	}
	if rb.Len() != 3 || rb.Oldest() != 1 {
		t.Fatalf("Len=%d Oldest=%d, want 3 and 1", rb.Len(), rb.Oldest())
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Since(0); len(got) != 0 {
		t.Fatalf("empty buffer Since should return 0, got %d", len(got))
	}
	if rb.Oldest() != 0 {
		t.Fatalf("empty buffer Oldest should be 0")
	}
}
