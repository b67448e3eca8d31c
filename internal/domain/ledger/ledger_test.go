package ledger

import (
	"sync"
	"testing"
)

func TestCreditDebit(t *testing.T) {
	l := New(1000, 3.0)

	l.Credit(500)
	if l.Funds() != 1500 {
		t.Errorf("expected 1500 after credit, got %d", l.Funds())
	}

	l.Debit(700)
	if l.Funds() != 800 {
		t.Errorf("expected 800 after debit, got %d", l.Funds())
	}
}

// Overhead larger than the balance drives the company into debt, and a
// later payment recovers from it. There is no floor at zero.
func TestFundsMayGoNegative(t *testing.T) {
	l := New(1000, 3.0)

	l.Debit(5000)
	if l.Funds() != -4000 {
		t.Errorf("expected -4000, got %d", l.Funds())
	}

	l.Credit(6000)
	if l.Funds() != 2000 {
		t.Errorf("expected 2000 after recovery, got %d", l.Funds())
	}
}

func TestAdjustReputationClampsResult(t *testing.T) {
	l := New(0, 4.8)

	got := l.AdjustReputation(0.5)
	if got != ReputationMax {
		t.Errorf("expected reputation clamped at %v, got %v", ReputationMax, got)
	}

	l = New(0, 1.2)
	got = l.AdjustReputation(-0.5)
	if got != ReputationMin {
		t.Errorf("expected reputation clamped at %v, got %v", ReputationMin, got)
	}
}

// A single adjustment moves the rating at most half a star, whatever
// delta the caller asks for.
func TestAdjustReputationClampsStep(t *testing.T) {
	l := New(0, 3.0)

	got := l.AdjustReputation(10)
	if got != 3.5 {
		t.Errorf("expected 3.5 after oversized positive delta, got %v", got)
	}

	got = l.AdjustReputation(-10)
	if got != 3.0 {
		t.Errorf("expected 3.0 after oversized negative delta, got %v", got)
	}
}

func TestNewClampsStartingReputation(t *testing.T) {
	l := New(0, 9.0)
	if l.Reputation() != ReputationMax {
		t.Errorf("expected starting reputation clamped to %v, got %v", ReputationMax, l.Reputation())
	}

	l = New(0, -1.0)
	if l.Reputation() != ReputationMin {
		t.Errorf("expected starting reputation clamped to %v, got %v", ReputationMin, l.Reputation())
	}
}

func TestRestoreClampsReputation(t *testing.T) {
	l := New(100, 3.0)
	l.Restore(-250, 7.0)

	if l.Funds() != -250 {
		t.Errorf("expected restored funds -250, got %d", l.Funds())
	}
	if l.Reputation() != ReputationMax {
		t.Errorf("expected restored reputation clamped, got %v", l.Reputation())
	}
}

func TestConcurrentMutations(t *testing.T) {
	l := New(0, 3.0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Credit(3)
				l.Debit(1)
			}
		}()
	}
	wg.Wait()

	want := int64(50 * 100 * 2)
	if l.Funds() != want {
		t.Errorf("expected %d after concurrent mutations, got %d", want, l.Funds())
	}
}
