/*
Package event provides the pub/sub spine of the agentdeck server.

The dispatcher and the session engine publish protocol events here; the
transport multiplexer subscribes once and fans each event out to every open
client connection. Publishing is synchronous: subscribers run in the
publisher's goroutine, which is what preserves per-turn event ordering all
the way to the wire. Subscribers that cannot keep up must enqueue into their
own buffered channel with a non-blocking send and drop on overflow.

The bus is built on watermill's gochannel so it can later be swapped for a
distributed backend without changing callers:

	bus := event.NewBus()
	defer bus.Close()

	unsub := bus.SubscribeAll(func(ev protocol.Event) { ... })
	bus.Publish(protocol.Event{Type: protocol.EventAgentStart})
*/
package event
