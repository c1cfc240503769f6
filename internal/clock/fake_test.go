package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_NowAndAdvance(t *testing.T) {
	c := Fake(epoch)
	if !c.Now().Equal(epoch) {
		t.Fatalf("Now = %v, want %v", c.Now(), epoch)
	}
	c.Advance(3 * time.Second)
	if got := c.Now().Sub(epoch); got != 3*time.Second {
		t.Fatalf("advanced %v, want 3s", got)
	}
}

func TestFake_After(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(time.Second)

	c.Advance(999 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(time.Second)) {
			t.Errorf("fired at %v", got)
		}
	default:
		t.Fatal("did not fire at deadline")
	}
	if n := c.PendingCount(); n != 0 {
		t.Errorf("PendingCount = %d after one-shot fired", n)
	}
}

func TestFake_AfterNonPositive(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should be ready immediately")
	}
}

func TestFake_TickerDropsWhenFull(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-tk.C:
	default:
		t.Fatal("expected a tick")
	}
	select {
	case <-tk.C:
		t.Fatal("extra ticks should have been dropped")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-tk.C:
	default:
		t.Fatal("ticker should keep firing")
	}
}

func TestFake_TickerStop(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Second)
	tk.Stop()
	c.Advance(2 * time.Second)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFake_WaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never released")
	}
}
