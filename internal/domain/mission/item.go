package mission

import (
	"strconv"
	"strings"
)

// Item is a single inventory entry attached to a mission (what gets moved).
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	WeightKg float64 `json:"weight_kg,omitempty"`
	Fragile  bool    `json:"fragile,omitempty"`
}

// Summary renders a short human-readable inventory line for notifications,
// e.g. "3x Box, 1x Sofa (fragile)".
func Summary(items []Item) string {
	if len(items) == 0 {
		return ""
	}

	parts := make([]string, 0, len(items))
	for _, it := range items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		s := strconv.Itoa(qty) + "x " + strings.TrimSpace(it.Name)
		if it.Fragile {
			s += " (fragile)"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}
