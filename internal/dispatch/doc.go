// Package dispatch decides which surfaced incidents become notifications
// and delivers them.
//
// dispatcher.go applies the severity gate and the cooldown ledger, then
// fans each qualifying alert out to every configured transport; a transport
// failure releases the ledger claim so the incident stays eligible next
// cycle. payload.go builds the notification payload, webhook.go posts
// Slack/Teams/generic JSON, nats.go publishes to a NATS subject.
package dispatch
