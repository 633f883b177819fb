package models

// Output files written into the data directory, one per record kind.
const (
	StationsFile    = "stations.csv"
	TrainsFile      = "trains.csv"
	DeparturesFile  = "departures.csv"
	ConnectionsFile = "connections.csv"
	PositionsFile   = "train_positions.csv"
)

// TrainKeyField is the dedup key of the train registry file.
const TrainKeyField = "train_id"

// StationObservation records that a station's liveboard was fetched.
type StationObservation struct {
	StationName string `csv:"station_name"`
	RecordedAt  string `csv:"recorded_at"`
}

// TrainRecord is one row of the train registry. Train IDs are unique within
// the registry file.
type TrainRecord struct {
	TrainID   string `csv:"train_id"`
	TrainType string `csv:"train_type"`
}

// Departure is one departure listed on a station liveboard.
type Departure struct {
	Station       string `csv:"station"`
	TrainID       string `csv:"train_id"`
	Destination   string `csv:"destination"`
	Platform      string `csv:"platform"`
	ScheduledTime string `csv:"scheduled_time"`
	ActualTime    string `csv:"actual_time"`
	DelaySeconds  int    `csv:"delay_seconds"`
	TrainType     string `csv:"train_type"`
	RecordedAt    string `csv:"recorded_at"`
}

// ConnectionRecord is one itinerary between two stations.
type ConnectionRecord struct {
	FromStation          string `csv:"from_station"`
	ToStation            string `csv:"to_station"`
	TotalDurationMinutes int    `csv:"total_duration_minutes"`
	TransferCount        int    `csv:"transfer_count"`
	RecordedAt           string `csv:"recorded_at"`
}

// PositionRecord is a geocoded stop along a train's route.
// Latitude and longitude are kept exactly as the API reported them.
type PositionRecord struct {
	TrainID    string `csv:"train_id"`
	Latitude   string `csv:"latitude"`
	Longitude  string `csv:"longitude"`
	RecordedAt string `csv:"recorded_at"`

	// Not written to CSV; used to pick the current position for export
	StopName string `csv:"-"`
	Departed bool   `csv:"-"`
}

// Field orders of the output files. The header written when a file is
// created stays authoritative for the lifetime of that file.
var (
	StationFields    = []string{"station_name", "recorded_at"}
	TrainFields      = []string{"train_id", "train_type"}
	DepartureFields  = []string{"station", "train_id", "destination", "platform", "scheduled_time", "actual_time", "delay_seconds", "train_type", "recorded_at"}
	ConnectionFields = []string{"from_station", "to_station", "total_duration_minutes", "transfer_count", "recorded_at"}
	PositionFields   = []string{"train_id", "latitude", "longitude", "recorded_at"}
)
