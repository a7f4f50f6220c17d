package chat

import "titan/internal/types"

// phaseLabel returns the human-readable thinking label for the round. Build
// turns narrate their progress; chat turns keep it generic.
func phaseLabel(round int, intent types.Intent) string {
	if intent.IsBuild() {
		switch {
		case round == 1:
			return "Planning the work..."
		case round == 2:
			return "Reading the codebase..."
		case round <= 5:
			return "Making changes..."
		case round <= 8:
			return "Checking the results..."
		default:
			return "Finishing up..."
		}
	}
	switch round {
	case 1:
		return "Thinking..."
	default:
		return "Working on it..."
	}
}
