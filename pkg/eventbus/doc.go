// Package eventbus provides the typed in-process publish/subscribe fabric used
// for cross-component signaling.
//
// Topics are declared once with their payload type:
//
//	var NotificationsChanged = eventbus.NewTopic[NotificationCounts]("notificationsChanged")
//
// and used through the generic helpers:
//
//	unsubscribe := eventbus.Subscribe(bus, eventbus.NotificationsChanged, func(c eventbus.NotificationCounts) {
//	    badge.Set(c.Unread)
//	})
//	defer unsubscribe()
//
//	eventbus.Publish(bus, eventbus.NotificationsChanged, counts)
//
// A panicking handler is logged and does not prevent delivery to the others.
package eventbus
