/*
Package events provides an in-memory broker for orchestration events.

The phase runner publishes one event per lifecycle transition (entering,
entered, skipped, failed, released) and the CLI subscribes to print a
progress line per event. Delivery is asynchronous: a publisher never waits
on a slow subscriber, whose events are dropped once its buffer is full.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Phase)
		}
	}()
*/
package events
