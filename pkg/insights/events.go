package insights

import (
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

const noRecordingURL = "No URL"

type (
	RaceEvent struct {
		Date         string `json:"date"`
		Category     string `json:"category"`
		Flag         string `json:"flag,omitempty"`
		Message      string `json:"message"`
		DriverNumber int    `json:"driverNumber,omitempty"`
		LapNumber    int    `json:"lapNumber,omitempty"`
	}
	RadioClip struct {
		DriverNumber int    `json:"driverNumber"`
		Date         string `json:"date"`
		URL          string `json:"url"`
	}
)

// computeRaceEvents keeps the arrival order of the race control messages
func computeRaceEvents(records []model.Record) []RaceEvent {
	ret := make([]RaceEvent, 0, len(records))
	for _, r := range records {
		e := RaceEvent{
			Date:     r.StringOr("date", NotAvailable),
			Category: r.StringOr("category", NotAvailable),
			Flag:     r.StringOr("flag", ""),
			Message:  r.StringOr("message", NotAvailable),
		}
		if num, ok := r.DriverNumber(); ok {
			e.DriverNumber = num
		}
		if lap, ok := r.Int("lap_number"); ok && lap > 0 {
			e.LapNumber = lap
		}
		ret = append(ret, e)
	}
	return ret
}

func computeTeamRadio(records []model.Record) []RadioClip {
	ret := make([]RadioClip, 0, len(records))
	for _, r := range records {
		ret = append(ret, RadioClip{
			DriverNumber: intOr(r, "driver_number"),
			Date:         r.StringOr("date", NotAvailable),
			URL:          r.StringOr("recording_url", noRecordingURL),
		})
	}
	return ret
}
