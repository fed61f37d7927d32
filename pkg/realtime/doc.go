// Package realtime manages the single authenticated push connection.
//
// The Manager owns at most one live Connection. A Connection is bound to the
// access token it was created with: asking for a connection with the same
// token returns the existing handle, while a new token tears the old
// connection down before a replacement is opened.
//
//	mgr := realtime.NewManager(realtime.NewWebsocketDialer("wss://api.example.com/ws"))
//	mgr.OnConnect(func(c *realtime.Connection) {
//	    c.On(realtime.EventNotification, func(ev realtime.Event) { ... })
//	})
//	conn, err := mgr.InitializeConnection(ctx, accessToken)
//
// # Reconnection
//
// A failed dial is retried a bounded number of times with a fixed delay
// (5 retries, 1s apart by default). When the budget runs out the handle stays
// in StateDisconnected and ErrRetriesExhausted is returned; nothing panics.
// A transport that drops after connecting is redialed on the same handle, so
// listeners survive transient failures.
//
// # Wire format
//
// Frames are JSON text messages:
//
//	{"event": "notification", "payload": {"type": "order_placed", "data": {...}}}
package realtime
