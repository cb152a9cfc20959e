// Package influxdb records printrelay telemetry in InfluxDB v2.
//
// Two measurements are written:
//   - scheduled_actions: one point per delayed action reaching a terminal
//     state, tagged by device, event, action and state
//   - host_events: one point per dispatched host event with counts of
//     scheduled, cancelled and dropped actions
//
// The integration is optional. Connect returns ErrDisabled when the
// influxdb section is not enabled and callers run without telemetry.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteActionOutcome(influxdb.ActionOutcome{DeviceMAC: mac, State: "completed"})
package influxdb
