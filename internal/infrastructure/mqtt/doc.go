// Package mqtt provides the MQTT client printrelay uses to receive host
// events and device state, and to publish device commands.
//
// It wraps github.com/eclipse/paho.mqtt.golang with:
//   - Auto-reconnect and subscription replay
//   - Retained online/offline status with a last will
//   - Panic recovery around message handlers
//   - A topic builder for the command/state/status hierarchy
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: "printrelay"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.HostEvents("octoPrint"), 1, handler)
package mqtt
