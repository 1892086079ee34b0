package routing

import "strings"

// Maneuver types shared by the provider adapters.
const (
	ManeuverDepart         = "depart"
	ManeuverArrive         = "arrive"
	ManeuverTurn           = "turn"
	ManeuverContinue       = "continue"
	ManeuverNewName        = "new name"
	ManeuverMerge          = "merge"
	ManeuverOnRamp         = "on ramp"
	ManeuverOffRamp        = "off ramp"
	ManeuverFork           = "fork"
	ManeuverEndOfRoad      = "end of road"
	ManeuverRoundabout     = "roundabout"
	ManeuverRotary         = "rotary"
	ManeuverExitRoundabout = "exit roundabout"
	ManeuverExitRotary     = "exit rotary"
)

// InstructionText composes a human-readable step from a maneuver, an optional
// direction modifier (e.g. "left", "slight right", "uturn") and an optional
// road name.
func InstructionText(maneuver, modifier, road string) string {
	var b strings.Builder

	switch maneuver {
	case ManeuverArrive:
		return "You have arrived at your destination"
	case ManeuverDepart:
		b.WriteString("Depart")
		if dir := strings.TrimSpace(modifier); dir != "" {
			b.WriteString(" heading " + dir)
		}
		return withRoad(&b, " on ", road)
	case ManeuverTurn, ManeuverEndOfRoad:
		switch modifier {
		case "uturn":
			b.WriteString("Make a U-turn")
		case "straight", "":
			b.WriteString("Go straight")
		default:
			b.WriteString("Turn " + modifier)
		}
		if maneuver == ManeuverEndOfRoad {
			b.WriteString(" at the end of the road")
		}
	case ManeuverContinue, ManeuverNewName:
		b.WriteString("Continue")
		if modifier != "" && modifier != "straight" {
			b.WriteString(" " + modifier)
		}
	case ManeuverMerge:
		b.WriteString(joinNonEmpty("Merge", modifier))
	case ManeuverOnRamp:
		b.WriteString(joinNonEmpty("Take the ramp", modifier))
	case ManeuverOffRamp:
		b.WriteString(joinNonEmpty("Take the exit", modifier))
	case ManeuverFork:
		b.WriteString(joinNonEmpty("Keep", modifier) + " at the fork")
	case ManeuverRoundabout, ManeuverRotary:
		b.WriteString("Enter the roundabout")
		return withRoad(&b, " and exit onto ", road)
	case ManeuverExitRoundabout, ManeuverExitRotary:
		b.WriteString("Exit the roundabout")
	default:
		b.WriteString("Continue")
	}

	return withRoad(&b, " onto ", road)
}

func withRoad(b *strings.Builder, sep, road string) string {
	if road = strings.TrimSpace(road); road != "" {
		b.WriteString(sep + road)
	}
	return b.String()
}

func joinNonEmpty(head, tail string) string {
	if tail == "" {
		return head
	}
	return head + " " + tail
}
