package slots_test

import (
	"testing"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/slots"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Slots(t *testing.T) {
	now := time.Unix(1_000_005, 0)

	s, err := slots.New(10*time.Second, slots.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct slots: %v", failed, err)
	}

	t.Log("Given the need to map time onto slots.")
	{
		if s.SlotNumber(0) != 0 || s.SlotNumber(9) != 0 || s.SlotNumber(10) != 1 || s.SlotNumber(25) != 2 {
			t.Fatalf("\t%s\tShould floor the timestamp by the interval.", failed)
		}
		t.Logf("\t%s\tShould floor the timestamp by the interval.", success)

		if s.SlotTime(7) != 70 {
			t.Fatalf("\t%s\tShould return the start of the slot, got %d.", failed, s.SlotTime(7))
		}
		t.Logf("\t%s\tShould return the start of the slot.", success)

		if s.CurrentSlot() != 100_000 {
			t.Fatalf("\t%s\tShould use the clock for the current slot, got %d.", failed, s.CurrentSlot())
		}
		t.Logf("\t%s\tShould use the clock for the current slot.", success)

		if !s.IsWithinTimeslot(3, 39) || s.IsWithinTimeslot(3, 40) {
			t.Fatalf("\t%s\tShould identify timestamps within a slot.", failed)
		}
		t.Logf("\t%s\tShould identify timestamps within a slot.", success)

		if !s.IsCurrentSlot(100_000) || s.IsCurrentSlot(100_001) {
			t.Fatalf("\t%s\tShould identify the current slot.", failed)
		}
		t.Logf("\t%s\tShould identify the current slot.", success)

		if _, err := slots.New(time.Millisecond); err == nil {
			t.Fatalf("\t%s\tShould reject an interval below one second.", failed)
		}
		t.Logf("\t%s\tShould reject an interval below one second.", success)
	}
}
