package model

import "fmt"

type Driver struct {
	Number     int    `json:"driverNumber"`
	FullName   string `json:"fullName"`
	TeamName   string `json:"teamName"`
	Acronym    string `json:"acronym,omitempty"`
	TeamColour string `json:"teamColour,omitempty"`
}

// DriverLabel is the placeholder used when a driver number cannot be resolved
func DriverLabel(num int) string {
	return fmt.Sprintf("#%d", num)
}
