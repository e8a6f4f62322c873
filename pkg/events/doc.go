/*
Package events provides in-process publish/subscribe for submission
lifecycle events.

The broker decouples the submission coordinator from anything that wants
to observe it. The coordinator publishes; subscribers (the serve
command's debug logger, tests) receive on buffered channels. Delivery is
best-effort: a slow subscriber loses events rather than stalling
submissions.

# Event Types

  - poc.created: a new record was persisted
  - poc.deduplicated: a submission matched an existing record
  - run.finished: a container run completed (any exit code)
  - agent.verified: a verify-all pass over one agent completed

Events carry a human-readable message plus string metadata (agent_id,
task_id, poc_id, mode, exit_code as applicable). PoC bytes never appear
in events.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for event := range sub {
			logger.Debug().
				Str("type", string(event.Type)).
				Msg(event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventPocCreated,
		Message: "poc accepted",
		Metadata: map[string]string{
			"poc_id":   rec.PocID,
			"agent_id": rec.AgentID,
		},
	})

# Design Patterns

A single delivery goroutine fans queued events out to subscribers.
Publish never blocks: when the queue is full the event is dropped, and
delivery drops per-subscriber when a subscriber's buffer is full. Stop
delivers what was already queued and then closes every subscriber
channel, so range loops over subscriptions terminate on shutdown.
Event delivery is not durable and carries no ordering guarantee across
subscribers; anything that needs durable state reads the store instead.
*/
package events
