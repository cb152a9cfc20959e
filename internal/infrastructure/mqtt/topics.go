package mqtt

import "strings"

// Topics builds the printrelay topic hierarchy under a configurable root.
//
//	{prefix}/command/{resource}/{mac}   commands to the device bridge
//	{prefix}/state/{resource}/{mac}     retained device state from the bridge
//	{prefix}/system/status              printrelay online/offline (retained)
type Topics struct {
	Prefix string
}

// Command returns the topic a device command is published on.
func (t Topics) Command(resource, mac string) string {
	return t.Prefix + "/command/" + resource + "/" + mac
}

// State returns the retained state topic for one device.
func (t Topics) State(resource, mac string) string {
	return t.Prefix + "/state/" + resource + "/" + mac
}

// AllStates matches every device state topic.
func (t Topics) AllStates() string {
	return t.Prefix + "/state/+/+"
}

// SystemStatus returns the retained status topic for this service.
func (t Topics) SystemStatus() string {
	return t.Prefix + "/system/status"
}

// ParseState extracts resource and MAC from a state topic built by State.
func (t Topics) ParseState(topic string) (resource, mac string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/state/")
	if !found {
		return "", "", false
	}
	resource, mac, found = strings.Cut(rest, "/")
	if !found || resource == "" || mac == "" || strings.Contains(mac, "/") {
		return "", "", false
	}
	return resource, mac, true
}

// HostEvents matches every host event published under base, such as
// octoPrint/event/PrintStarted.
func HostEvents(base string) string {
	return strings.TrimSuffix(base, "/") + "/event/+"
}

// ParseHostEvent returns the event name from a topic matched by HostEvents.
func ParseHostEvent(base, topic string) (string, bool) {
	name, found := strings.CutPrefix(topic, strings.TrimSuffix(base, "/")+"/event/")
	if !found || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
