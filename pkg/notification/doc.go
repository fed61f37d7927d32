// Package notification keeps the user's notifications consistent across
// every mounted view.
//
// The Engine is the single owner of the notification set. REST fetches,
// push events and read marks all go through it, and each change is
// announced with one notificationsChanged broadcast on the event bus.
// Observers (badge, list, dashboards) subscribe to that broadcast instead of
// polling or merging on their own, so they always converge on the same counts.
//
//	engine := notification.NewEngine(api, notification.WithBus(bus))
//	engine.Attach(realtimeManager)
//	badge := engine.Observe("badge", func(c notification.Counts) { ... })
//	defer badge.Unmount()
package notification
