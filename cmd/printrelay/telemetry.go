package main

import (
	"github.com/nerrad567/printrelay/internal/automation"
	"github.com/nerrad567/printrelay/internal/infrastructure/influxdb"
)

// outcomeWriter is the part of *influxdb.Client the recorder uses.
type outcomeWriter interface {
	WriteActionOutcome(o influxdb.ActionOutcome)
	WriteEventDispatch(event string, scheduled, cancelled, dropped int)
}

// outcomeRecorder adapts the InfluxDB client to automation.OutcomeRecorder.
type outcomeRecorder struct {
	client outcomeWriter
}

// RecordDispatch implements automation.OutcomeRecorder.
func (r *outcomeRecorder) RecordDispatch(result automation.DispatchResult) {
	if result.Ignored {
		return
	}
	r.client.WriteEventDispatch(result.Event, len(result.Scheduled), result.Cancelled, result.Dropped)
}

// RecordOutcome implements automation.OutcomeRecorder.
func (r *outcomeRecorder) RecordOutcome(a automation.PendingAction) {
	o := influxdb.ActionOutcome{
		DeviceMAC:    a.DeviceID,
		Event:        a.Event.String(),
		Action:       a.Action.String(),
		State:        string(a.State),
		DelaySeconds: a.TotalSeconds,
		Error:        a.Error,
	}
	if a.FinishedAt != nil {
		o.At = *a.FinishedAt
		o.ElapsedSeconds = a.FinishedAt.Sub(a.ScheduledAt).Seconds()
	}
	r.client.WriteActionOutcome(o)
}

// multiRecorder fans scheduler telemetry out to several recorders.
type multiRecorder []automation.OutcomeRecorder

// RecordDispatch implements automation.OutcomeRecorder.
func (m multiRecorder) RecordDispatch(result automation.DispatchResult) {
	for _, r := range m {
		r.RecordDispatch(result)
	}
}

// RecordOutcome implements automation.OutcomeRecorder.
func (m multiRecorder) RecordOutcome(a automation.PendingAction) {
	for _, r := range m {
		r.RecordOutcome(a)
	}
}
