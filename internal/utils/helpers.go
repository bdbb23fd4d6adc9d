package utils

import "strings"

// DeviceMacFromTopic extracts the device identity from a topic shaped like
// devices/{mac}/sensors.
func DeviceMacFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}
