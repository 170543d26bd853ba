// Package rollcall turns periodic roster snapshots into a flicker-free
// stream of join and leave events.
//
// Quick start:
//
//	t, err := rollcall.New(rollcall.WithEventID("webinar-42"),
//	    rollcall.WithAbsenceThreshold(15*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	events := t.Observe(time.Now(), rollcall.Entry{Label: "Zoë O'Brien"})
//	fmt.Println(events[0].Type, events[0].AttendeeID) // join name:zoe obrien
//
// Feed Observe one snapshot per poll cycle, with the complete set of names
// seen in that cycle. An identity leaves once it has been missing for longer
// than the absence threshold; shorter gaps are absorbed. A Tracker is safe
// for concurrent use.
package rollcall
