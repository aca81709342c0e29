package identity

import (
	"fmt"
	"hash/fnv"
)

// Persona name parts. The label is cosmetic: a stable, human-friendly handle
// for a node id so operators can tell peers apart in logs and CLI output.
var (
	personaPrefixes = []string{
		"Amber", "Cobalt", "Crimson", "Dusk", "Ember", "Frost",
		"Indigo", "Ivory", "Jade", "Onyx", "Sage", "Slate",
	}
	personaRoles = []string{
		"Archivist", "Beacon", "Courier", "Keeper", "Listener", "Observer",
		"Scribe", "Sentinel", "Voyager", "Warden",
	}
)

// PersonaFor derives a deterministic persona label from a node id. The same
// id always yields the same label on every node.
func PersonaFor(nodeID string) string {
	h := fnv.New32a()
	h.Write([]byte(nodeID))
	sum := h.Sum32()

	prefix := personaPrefixes[sum%uint32(len(personaPrefixes))]
	role := personaRoles[(sum/uint32(len(personaPrefixes)))%uint32(len(personaRoles))]
	return fmt.Sprintf("%s-%s", prefix, role)
}
