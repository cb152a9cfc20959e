// Package octoprint feeds 3D printer host events into the scheduler.
//
// The OctoPrint MQTT plugin publishes every host event on
// {base_topic}/event/{EventName}. The Bridge subscribes to those topics,
// takes the event name from the last topic segment and hands it to the
// dispatcher together with every inventory device. Payloads are ignored.
//
// The bridge also subscribes to the retained device state topics of the
// smart device bridge and keeps the device registry's online/on flags
// current.
//
// HandleEvent is the same entry point without MQTT; the HTTP webhook uses
// it for hosts that cannot publish to a broker.
package octoprint
