package p2p

import (
	"testing"
	"time"
)

func TestSeenCache(t *testing.T) {
	s := newSeenCache(50 * time.Millisecond)
	if s.Seen("x") {
		t.Fatalf("first time should be unseen")
	}
	if !s.Seen("x") {
		t.Fatalf("second time should be seen")
	}
	time.Sleep(60 * time.Millisecond)
	if s.Seen("x") {
		t.Fatalf("after ttl it should expire and be unseen")
	}
	s.Forget("x")
	if s.Seen("x") {
		t.Fatalf("forgotten id should be unseen")
	}
	time.Sleep(60 * time.Millisecond)
	s.gc()
	if len(s.items) != 0 {
		t.Fatalf("gc left %d items", len(s.items))
	}
}
