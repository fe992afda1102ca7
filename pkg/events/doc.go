/*
Package events is an in-process pub/sub broker for repmgrd event
notifications.

pkg/catalog.RecordEvent calls Broker.Publish after every durable write
to the events table once a broker has been attached with SetBroker, as
cmd/repmgrd does. Nothing in this tree subscribes to the broker: the
metrics counters are bumped directly by the packages that own them, and
the configured event_notification_command is run by pkg/failover
through pkg/remote's Executor.

Publish never blocks on a slow subscriber: the broker buffers 100
pending events internally and each subscriber channel buffers 50; a
subscriber that falls behind has events dropped for it rather than
stalling the publisher.

EventType values are the same vocabulary the catalog's events table
and the event_notifications config key use, so a Broker consumer can
filter by comparing against config.Config.EventNotifications directly.
*/
package events
