package model

import "fmt"

// Mode selects the temporal regime used when deriving insights.
type Mode int

const (
	ModeHistorical Mode = iota
	ModeLive
)

func (m Mode) String() string {
	switch m {
	case ModeHistorical:
		return "historical"
	case ModeLive:
		return "live"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "historical":
		return ModeHistorical, nil
	case "live":
		return ModeLive, nil
	}
	return ModeHistorical, fmt.Errorf("unknown mode %q", s)
}
