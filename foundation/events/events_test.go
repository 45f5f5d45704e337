package events_test

import (
	"testing"

	"github.com/ardanlabs/dpos/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Events(t *testing.T) {
	t.Log("Given the need to fan out events to subscribers.")
	{
		evts := events.New()

		id1, ch1 := evts.Acquire()
		id2, ch2 := evts.Acquire()
		if id1 == id2 || evts.Len() != 2 {
			t.Fatalf("\t%s\tShould register two distinct subscribers.", failed)
		}
		t.Logf("\t%s\tShould register two distinct subscribers.", success)

		if err := evts.SendJSON("block", map[string]int{"height": 1}); err != nil {
			t.Fatalf("\t%s\tShould be able to send a JSON event: %v", failed, err)
		}

		for _, ch := range []<-chan events.Message{ch1, ch2} {
			msg := <-ch
			if msg.Type != "block" || string(msg.Data) != `{"height":1}` {
				t.Fatalf("\t%s\tShould receive the event: %+v", failed, msg)
			}
		}
		t.Logf("\t%s\tShould deliver the event to every subscriber.", success)

		if err := evts.SendJSON("block", func() {}); err == nil {
			t.Fatalf("\t%s\tShould report a value that can't be marshaled.", failed)
		}
		select {
		case msg := <-ch1:
			t.Fatalf("\t%s\tShould not send an event that failed to marshal: %+v", failed, msg)
		default:
		}
		t.Logf("\t%s\tShould report a value that can't be marshaled.", success)

		if err := evts.Release(id1); err != nil {
			t.Fatalf("\t%s\tShould be able to release a subscriber: %v", failed, err)
		}
		if _, open := <-ch1; open {
			t.Fatalf("\t%s\tShould close the released channel.", failed)
		}
		if err := evts.Release(id1); err == nil {
			t.Fatalf("\t%s\tShould not release an unknown subscriber.", failed)
		}
		t.Logf("\t%s\tShould release a subscriber once.", success)

		for i := 0; i < 200; i++ {
			evts.SendText("log", "message")
		}
		t.Logf("\t%s\tShould not block on a slow subscriber.", success)

		evts.Shutdown()
		if evts.Len() != 0 {
			t.Fatalf("\t%s\tShould remove every subscriber on shutdown.", failed)
		}
		t.Logf("\t%s\tShould remove every subscriber on shutdown.", success)

		var n int
		for range ch2 {
			n++
		}
		if n != 100 {
			t.Fatalf("\t%s\tShould have buffered 100 events: got %d", failed, n)
		}
		t.Logf("\t%s\tShould drain the buffered events after shutdown.", success)
	}
}
