/*
Package events provides an in-memory broker for task lifecycle events.

Every significant transition - queued, started, progress, completed,
failed, retrying, cancelled, dead-lettered - is published as an Event
and broadcast to subscribers: API streamers, CLI watchers, metrics.
Events are notifications, not state. The store is the source of truth;
a consumer that misses events re-reads the record and loses nothing but
commentary.

# Delivery

	Publish ──► buffered intake ──► broadcast loop ──► subscriber
	                                                   channels

Publish never blocks: the intake channel is buffered and a subscriber
whose own buffer is full is skipped for that event. Slow consumers lose
events, fast publishers never stall - the right trade for a telemetry
bus feeding a low-latency execution path.

# Subscriptions

Subscribe returns a channel of all events; SubscribeTask filters to one
task ID, which is what a CLI watching a single submission uses.
Unsubscribe closes the channel. Events carry ID, type, task ID, status,
timestamp and an optional detail payload.

# Usage

	sub := broker.SubscribeTask(taskID)
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		fmt.Println(ev.Type, ev.Status)
	}
*/
package events
