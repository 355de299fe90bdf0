package backend

import (
	"context"
	"log"
)

// Probe checks each backend's availability once and returns the subset
// that is usable. An absent tool disables only that backend's
// contribution to the merged session view; the process starts normally
// either way.
func Probe(ctx context.Context, backends []Backend) []Backend {
	var enabled []Backend
	for _, b := range backends {
		if !b.Available(ctx) {
			log.Printf("backend %s: tool not available, disabled", b.Kind())
			continue
		}
		log.Printf("backend %s: enabled (caps %s)", b.Kind(), capsString(b.Capabilities()))
		enabled = append(enabled, b)
	}
	return enabled
}

func capsString(c CapabilitySet) string {
	s := ""
	if c.Read {
		s += "r"
	}
	if c.Write {
		s += "w"
	}
	if c.Focus {
		s += "f"
	}
	if c.Hook {
		s += "h"
	}
	if s == "" {
		return "-"
	}
	return s
}
