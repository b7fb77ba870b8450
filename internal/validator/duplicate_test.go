package validator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/txguard/internal/domain"
)

func TestDuplicateDetectorAdmit(t *testing.T) {
	d := NewDuplicateDetector(0, 0)
	now := time.Now()

	if err := d.Admit("tx-1", now, true); err != nil {
		t.Fatalf("first admit failed: %v", err)
	}
	err := d.Admit("tx-1", now, true)
	if err == nil || err.Kind != domain.KindDuplicateTransaction {
		t.Fatalf("expected DuplicateTransactionError, got %v", err)
	}
	if d.Len() != 1 {
		t.Errorf("expected one remembered id, got %d", d.Len())
	}
}

func TestDuplicateDetectorNoRecord(t *testing.T) {
	d := NewDuplicateDetector(0, 0)
	now := time.Now()

	if err := d.Admit("tx-1", now, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Contains("tx-1") {
		t.Fatal("id should not be remembered when record is false")
	}
	if err := d.Admit("tx-1", now, true); err != nil {
		t.Fatalf("corrected resubmission rejected: %v", err)
	}
}

func TestDuplicateDetectorRetention(t *testing.T) {
	d := NewDuplicateDetector(time.Hour, 0)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	d.Admit("old", start, true)
	d.Admit("newer", start.Add(30*time.Minute), true)

	if err := d.Admit("old", start.Add(59*time.Minute), true); err == nil {
		t.Fatal("expected duplicate inside retention window")
	}
	if err := d.Admit("old", start.Add(61*time.Minute), true); err != nil {
		t.Fatalf("expected id forgotten after retention window, got %v", err)
	}
	if !d.Contains("newer") {
		t.Error("newer id evicted too early")
	}
}

func TestDuplicateDetectorCapacity(t *testing.T) {
	d := NewDuplicateDetector(0, 3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		d.Admit(fmt.Sprintf("tx-%d", i), now.Add(time.Duration(i)*time.Second), true)
	}
	if d.Len() != 3 {
		t.Fatalf("expected 3 ids, got %d", d.Len())
	}
	for _, id := range []string{"tx-0", "tx-1"} {
		if d.Contains(id) {
			t.Errorf("expected %s evicted", id)
		}
	}
	for _, id := range []string{"tx-2", "tx-3", "tx-4"} {
		if !d.Contains(id) {
			t.Errorf("expected %s retained", id)
		}
	}
}

func TestDuplicateDetectorPrune(t *testing.T) {
	d := NewDuplicateDetector(0, 0)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		d.Admit(fmt.Sprintf("tx-%d", i), start.Add(time.Duration(i)*time.Hour), true)
	}

	if n := d.Prune(start.Add(2 * time.Hour)); n != 2 {
		t.Errorf("expected 2 pruned, got %d", n)
	}
	if d.Len() != 2 {
		t.Errorf("expected 2 remaining, got %d", d.Len())
	}
}

func TestDuplicateDetectorConcurrentAdmit(t *testing.T) {
	d := NewDuplicateDetector(0, 0)
	now := time.Now()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Admit("same-id", now, true) == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 1 {
		t.Errorf("expected exactly one admission, got %d", admitted.Load())
	}
}
