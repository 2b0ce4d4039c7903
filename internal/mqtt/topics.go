package mqtt

import (
	"fmt"
	"strings"
)

// BaseTopic is the root of every topic of one controller module.
func BaseTopic(deviceID, moduleUDID string) string {
	return BuildCleanTopic("verano", deviceID, moduleUDID)
}

// StateTopic carries the JSON state of a module.
func StateTopic(deviceID, moduleUDID string) string {
	return BaseTopic(deviceID, moduleUDID) + "/state"
}

// CommandTopic is where Home Assistant writes one kind of command.
func CommandTopic(deviceID, moduleUDID, command string) string {
	return BaseTopic(deviceID, moduleUDID) + "/set/" + BuildCleanTopic(command)
}

// AvailabilityTopic is shared by all modules of a device; it doubles as the
// last will topic.
func AvailabilityTopic(deviceID string) string {
	return BuildCleanTopic("verano", deviceID) + "/availability"
}

// DiscoveryTopic returns the Home Assistant discovery topic of a module entity.
func DiscoveryTopic(prefix, component, deviceID, moduleUDID string) string {
	return fmt.Sprintf("%s/%s/verano_%s/%s/config",
		prefix, component, BuildCleanTopic(deviceID), BuildCleanTopic(moduleUDID))
}

// BuildCleanTopic ensures topic follows MQTT standards
func BuildCleanTopic(parts ...string) string {
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		clean := strings.ReplaceAll(part, " ", "_")
		clean = strings.ReplaceAll(clean, "/", "_")
		clean = strings.ReplaceAll(clean, "+", "plus")
		clean = strings.ReplaceAll(clean, "#", "hash")
		cleanParts = append(cleanParts, strings.ToLower(clean))
	}
	return strings.Join(cleanParts, "/")
}
