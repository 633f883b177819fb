package irail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexString holds a scalar the API may send either as a JSON string or as
// a JSON number. Set is false when the field was absent or null.
type FlexString struct {
	Value string
	Set   bool
}

// UnmarshalJSON accepts strings, numbers and booleans.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = FlexString{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString{Value: s, Set: true}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString{Value: n.String(), Set: true}
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("irail: cannot decode %s as scalar", data)
	}
	*f = FlexString{Value: strconv.FormatBool(b), Set: true}
	return nil
}

// MarshalJSON writes the value back as a JSON string, or null when unset.
func (f FlexString) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// String returns the raw value.
func (f FlexString) String() string {
	return f.Value
}

// Int parses the value as a base-10 integer.
func (f FlexString) Int() (int64, error) {
	return strconv.ParseInt(f.Value, 10, 64)
}

// IntOr parses the value, returning def when it is absent or empty.
func (f FlexString) IntOr(def int64) (int64, error) {
	if !f.Set || f.Value == "" {
		return def, nil
	}
	return f.Int()
}

// Flag reports whether the value is "1" or "true".
func (f FlexString) Flag() bool {
	return f.Value == "1" || f.Value == "true"
}

// S builds a set FlexString, mostly for fixtures.
func S(v string) FlexString {
	return FlexString{Value: v, Set: true}
}

// StationInfo describes a station. LocationX is longitude, LocationY latitude.
type StationInfo struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	StandardName string     `json:"standardname"`
	LocationX    FlexString `json:"locationX"`
	LocationY    FlexString `json:"locationY"`
}

// VehicleInfo describes the train serving a departure or stop list.
type VehicleInfo struct {
	Name      string `json:"name"`
	ShortName string `json:"shortname"`
	Number    string `json:"number"`
	Type      string `json:"type"`
}

// Liveboard is the response of the liveboard endpoint.
type Liveboard struct {
	Version     string      `json:"version"`
	Timestamp   FlexString  `json:"timestamp"`
	Station     string      `json:"station"`
	StationInfo StationInfo `json:"stationinfo"`
	Departures  struct {
		Number    FlexString  `json:"number"`
		Departure []Departure `json:"departure"`
	} `json:"departures"`
}

// Departure is one entry of a liveboard. Station is the destination.
type Departure struct {
	ID          FlexString  `json:"id"`
	Station     string      `json:"station"`
	StationInfo StationInfo `json:"stationinfo"`
	Time        FlexString  `json:"time"`
	Delay       FlexString  `json:"delay"`
	Canceled    FlexString  `json:"canceled"`
	Vehicle     string      `json:"vehicle"`
	VehicleInfo VehicleInfo `json:"vehicleinfo"`
	Type        string      `json:"type"`
	Platform    FlexString  `json:"platform"`
}

// Connections is the response of the connections endpoint.
type Connections struct {
	Version    string       `json:"version"`
	Timestamp  FlexString   `json:"timestamp"`
	Connection []Connection `json:"connection"`
}

// Connection is one itinerary. Duration is in seconds.
type Connection struct {
	ID        FlexString     `json:"id"`
	Departure ConnectionStop `json:"departure"`
	Arrival   ConnectionStop `json:"arrival"`
	Duration  FlexString     `json:"duration"`
	Vias      struct {
		Number FlexString `json:"number"`
		Via    []Via      `json:"via"`
	} `json:"vias"`
}

// ConnectionStop is the departure or arrival end of a connection.
type ConnectionStop struct {
	Station     string      `json:"station"`
	StationInfo StationInfo `json:"stationinfo"`
	Time        FlexString  `json:"time"`
	Delay       FlexString  `json:"delay"`
	Vehicle     string      `json:"vehicle"`
	Platform    FlexString  `json:"platform"`
}

// Via is an intermediate stop where the traveller changes trains.
type Via struct {
	ID          FlexString  `json:"id"`
	Station     string      `json:"station"`
	StationInfo StationInfo `json:"stationinfo"`
	Vehicle     string      `json:"vehicle"`
}

// Vehicle is the response of the vehicle endpoint.
type Vehicle struct {
	Version     string      `json:"version"`
	Timestamp   FlexString  `json:"timestamp"`
	Vehicle     string      `json:"vehicle"`
	VehicleInfo VehicleInfo `json:"vehicleinfo"`
	Stops       struct {
		Number FlexString `json:"number"`
		Stop   []Stop     `json:"stop"`
	} `json:"stops"`
}

// Stop is one stop along a vehicle's route. Left is "1" once the train
// has departed from it.
type Stop struct {
	ID          FlexString  `json:"id"`
	Station     string      `json:"station"`
	StationInfo StationInfo `json:"stationinfo"`
	Time        FlexString  `json:"time"`
	Delay       FlexString  `json:"delay"`
	Platform    FlexString  `json:"platform"`
	Left        FlexString  `json:"left"`
}
