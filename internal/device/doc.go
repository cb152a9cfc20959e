// Package device is the inventory of smart devices printrelay can drive.
//
// Devices are listed in a YAML inventory file and reached through a vendor
// bridge over MQTT. The Registry caches the inventory, tracks the online/on
// state the bridge publishes on retained state topics, and hands out a
// Capability per device for the scheduler to invoke.
//
//	inventory.yaml ──▶ Registry ──▶ Capability.TurnOn/TurnOff
//	                     ▲                 │
//	  {prefix}/state/… ──┘                 ▼
//	                            {prefix}/command/{resource}/{mac}
//
// # Device types
//
// The inventory type selects a category, which selects the bridge resource
// and command set:
//
//	Light, MeshLight   → bulbs
//	Plug, OutdoorPlug  → plugs
//	Camera             → cameras
//
// Entries with any other type are skipped when the inventory loads.
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Capabilities are immutable once
// built and may be shared across goroutines.
package device
