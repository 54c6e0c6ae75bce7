package insights

import (
	"encoding/json"
	"strconv"
)

// NotAvailable is used for values that could not be extracted from a record
const NotAvailable = "N/A"

// Seconds is a lap, sector or pit duration. Negative values mark a missing
// duration and are rendered as "N/A".
type Seconds float64

const NoSeconds Seconds = -1

func secondsOf(v float64, ok bool) Seconds {
	if !ok || v < 0 {
		return NoSeconds
	}
	return Seconds(v)
}

func (s Seconds) Valid() bool {
	return s >= 0
}

func (s Seconds) String() string {
	if !s.Valid() {
		return NotAvailable
	}
	return strconv.FormatFloat(float64(s), 'f', -1, 64)
}

func (s Seconds) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(float64(s))
}
