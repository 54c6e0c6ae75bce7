package model

// Circuit describes the circuit of a session
type Circuit struct {
	SessionKey int    `json:"sessionKey"`
	MeetingKey int    `json:"meetingKey,omitempty"`
	CircuitKey int    `json:"circuitKey,omitempty"`
	Name       string `json:"name"`
	Location   string `json:"location,omitempty"`
	Country    string `json:"country,omitempty"`
}

// TrackGeometry holds properties extracted from a circuit GeoJSON document
type TrackGeometry struct {
	Name      string      `json:"name"`
	Location  string      `json:"location"`
	Country   string      `json:"country"`
	Altitude  float64     `json:"altitude"`
	CenterLat float64     `json:"centerLat"`
	CenterLon float64     `json:"centerLon"`
	Length    float64     `json:"length,omitempty"`
	Path      [][]float64 `json:"path,omitempty"` // lon/lat pairs
}

// Track combines circuit metadata with optional geometry
type Track struct {
	Circuit  Circuit        `json:"circuit"`
	Geometry *TrackGeometry `json:"geometry,omitempty"`
	// Reason is set if geometry is not available
	Reason string `json:"reason,omitempty"`
}
