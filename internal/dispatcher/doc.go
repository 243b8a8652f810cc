// Package dispatcher turns raw link bytes into accounted MAVLink messages.
//
// The Dispatcher is the inbound hub of groundlink. Every link goroutine hands
// it the chunks it reads; the dispatcher records them to the optional capture
// file, drives the per-link framer, classifies each message's sequence number
// and updates the per-source counters before notifying listeners.
//
// # Flow
//
//	link goroutine
//	    └─ OnBytesReceived(link, data)
//	         ├─ capture.Append(data)
//	         ├─ decoder.Decode(link, data)  → messages, dropped bytes
//	         └─ per message
//	              ├─ tracker.Classify(link, sysid, seq)
//	              ├─ counters.Record(sysid, outcome) → LossRateChanged
//	              └─ MessageReceived
//
// # Listeners
//
// Listeners are invoked synchronously on the goroutine that delivered the
// bytes. They must return quickly; a slow listener delays that link only.
//
//	unsubscribe := d.Subscribe(dispatcher.ListenerFuncs{
//	    OnMessage: func(link protocol.LinkHandle, msg *protocol.Message) {
//	        fmt.Println(link.Name(), msg)
//	    },
//	})
//	defer unsubscribe()
//
// # Thread Safety
//
// OnBytesReceived may be called concurrently for different links. Calls for
// the same link must come from one goroutine so bytes stay in arrival order.
// All query and capture methods are safe for concurrent use.
package dispatcher
