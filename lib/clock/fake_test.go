// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFake_AfterFiresOnAdvance(t *testing.T) {
	fake := Fake(time.Unix(1000, 0))
	ch := fake.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("fired before advance")
	default:
	}

	fake.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(time.Unix(1005, 0)) {
			t.Errorf("fired at %v, want 1005", fired)
		}
	default:
		t.Fatal("did not fire at deadline")
	}
}

func TestFake_AfterNonPositiveFiresImmediately(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFake_TickerRepeats(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		fake.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
}

func TestFake_StoppedTickerStopsFiring(t *testing.T) {
	fake := Fake(time.Unix(0, 0))
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()

	fake.Advance(3 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("tick after Stop")
	default:
	}
}

func TestFake_NowTracksAdvance(t *testing.T) {
	fake := Fake(time.Unix(100, 0))
	fake.Advance(90 * time.Second)
	if got := fake.Now(); !got.Equal(time.Unix(190, 0)) {
		t.Errorf("Now = %v", got)
	}
}
