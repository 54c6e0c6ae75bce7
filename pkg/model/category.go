package model

import (
	"fmt"
	"strings"
)

// Category names one of the fixed data series delivered by OpenF1.
type Category string

const (
	CategoryIntervals   Category = "intervals"
	CategoryPosition    Category = "position"
	CategoryLaps        Category = "laps"
	CategoryPit         Category = "pit"
	CategoryRaceControl Category = "race_control"
	CategoryCarData     Category = "car_data"
	CategoryWeather     Category = "weather"
	CategoryStints      Category = "stints"
	CategoryTyres       Category = "tyres"
	CategoryTeamRadio   Category = "team_radio"
)

const topicPrefix = "v1"

var allCategories = []Category{
	CategoryIntervals,
	CategoryPosition,
	CategoryLaps,
	CategoryPit,
	CategoryRaceControl,
	CategoryCarData,
	CategoryWeather,
	CategoryStints,
	CategoryTyres,
	CategoryTeamRadio,
}

// AllCategories returns the fixed categories in a stable order.
func AllCategories() []Category {
	ret := make([]Category, len(allCategories))
	copy(ret, allCategories)
	return ret
}

func (c Category) Valid() bool {
	for _, v := range allCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Topic is the broker topic (MQTT style) for this category, e.g. v1/laps
func (c Category) Topic() string {
	return fmt.Sprintf("%s/%s", topicPrefix, c)
}

// Subject is the NATS subject for this category, e.g. v1.laps
func (c Category) Subject() string {
	return fmt.Sprintf("%s.%s", topicPrefix, c)
}

// ParseTopic accepts "laps", "v1/laps" and "v1.laps".
func ParseTopic(topic string) (Category, bool) {
	name := topic
	for _, sep := range []string{"/", "."} {
		if after, ok := strings.CutPrefix(topic, topicPrefix+sep); ok {
			name = after
			break
		}
	}
	c := Category(name)
	return c, c.Valid()
}
