package identity

import (
	"os"
	"sort"
)

// capabilityProbes maps a capability tag to filesystem paths whose presence
// indicates the capability. Probing is best-effort: an unreadable path simply
// does not contribute a tag.
var capabilityProbes = map[string][]string{
	"audio":   {"/dev/snd", "/proc/asound"},
	"camera":  {"/dev/video0"},
	"display": {"/sys/class/backlight", "/sys/class/graphics/fb0"},
	"leds":    {"/sys/class/leds"},
	"gpio":    {"/sys/class/gpio", "/dev/gpiochip0"},
}

// DetectCapabilities probes the local machine for hardware/feature tags.
// It never fails: detection errors yield a smaller (possibly empty) set.
func DetectCapabilities() []string {
	caps := make([]string, 0, len(capabilityProbes)+1)
	for tag, paths := range capabilityProbes {
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				caps = append(caps, tag)
				break
			}
		}
	}
	if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
		if !contains(caps, "display") {
			caps = append(caps, "display")
		}
	}
	sort.Strings(caps)
	return caps
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
