package routing

import "testing"

func TestInstructionText(t *testing.T) {
	tests := []struct {
		maneuver, modifier, road string
		want                     string
	}{
		{ManeuverDepart, "", "Damrak", "Depart on Damrak"},
		{ManeuverDepart, "north", "", "Depart heading north"},
		{ManeuverTurn, "left", "Main Street", "Turn left onto Main Street"},
		{ManeuverTurn, "slight right", "", "Turn slight right"},
		{ManeuverTurn, "uturn", "", "Make a U-turn"},
		{ManeuverTurn, "straight", "Kade", "Go straight onto Kade"},
		{ManeuverEndOfRoad, "right", "", "Turn right at the end of the road"},
		{ManeuverContinue, "straight", "A10", "Continue onto A10"},
		{ManeuverNewName, "", "Rokin", "Continue onto Rokin"},
		{ManeuverFork, "left", "", "Keep left at the fork"},
		{ManeuverMerge, "", "A2", "Merge onto A2"},
		{ManeuverOffRamp, "right", "", "Take the exit right"},
		{ManeuverRoundabout, "", "Ring", "Enter the roundabout and exit onto Ring"},
		{ManeuverExitRoundabout, "", "", "Exit the roundabout"},
		{ManeuverArrive, "left", "Home", "You have arrived at your destination"},
		{"notification", "", "", "Continue"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := InstructionText(tt.maneuver, tt.modifier, tt.road); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
