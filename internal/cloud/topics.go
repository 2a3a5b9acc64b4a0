package cloud

import "strings"

// Topics provides builders for Arduino IoT Cloud topics.
//
//	topics := cloud.Topics{}
//	topics.PropertyInput("thing-1") // "/a/t/thing-1/e/i"
type Topics struct{}

// MonitorOutput is where a device writes its serial monitor output.
func (Topics) MonitorOutput(deviceID string) string {
	return "/a/d/" + deviceID + "/s/o"
}

// MonitorInput is where the cloud writes to a device's serial monitor.
func (Topics) MonitorInput(deviceID string) string {
	return "/a/d/" + deviceID + "/s/i"
}

// PropertyInput carries property updates into the cloud.
func (Topics) PropertyInput(thingID string) string {
	return "/a/t/" + thingID + "/e/i"
}

// PropertyOutput carries property values out of the cloud. Publishing here
// acts as the device itself.
func (Topics) PropertyOutput(thingID string) string {
	return "/a/t/" + thingID + "/e/o"
}

// IsMonitorOutput reports whether topic is a monitor output topic, whose
// payloads are plain text rather than SenML.
func (Topics) IsMonitorOutput(topic string) bool {
	return strings.HasPrefix(topic, "/a/d/") && strings.HasSuffix(topic, "/s/o")
}

// ThingID extracts the thing id from a property input or output topic.
func (Topics) ThingID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, "/a/t/")
	if !ok {
		return "", false
	}
	id, suffix, ok := strings.Cut(rest, "/")
	if !ok || id == "" || (suffix != "e/i" && suffix != "e/o") {
		return "", false
	}
	return id, true
}
