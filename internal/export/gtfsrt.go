// Package export writes the latest train positions of a run as a
// GTFS-Realtime vehicle positions feed, for map dashboards.
package export

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"google.golang.org/protobuf/proto"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/irail-csv/pipeline/internal/models"
)

// FeedFile is the file name of the snapshot inside the data directory.
const FeedFile = "vehicle_positions.pb"

const gtfsRealtimeVersion = "2.0"

// TrainPosition is the approximated current location of one train.
type TrainPosition struct {
	TrainID   string
	StopName  string
	Latitude  float64
	Longitude float64
	// InTransit is true when the train has left StopName
	InTransit bool
}

// CurrentPositions reduces the stop positions of each train to one current
// position: the last stop the train has left, or its first stop when it
// has not departed yet. Trains keep the order of their first record.
// Records with unparsable coordinates are skipped.
func CurrentPositions(records []models.PositionRecord) []TrainPosition {
	byTrain := make(map[string]*TrainPosition)
	var order []string

	for _, r := range records {
		lat, errLat := strconv.ParseFloat(r.Latitude, 64)
		lng, errLng := strconv.ParseFloat(r.Longitude, 64)
		if errLat != nil || errLng != nil {
			log.Printf("Export: skipping %s stop %q with invalid coordinates (%q, %q)", r.TrainID, r.StopName, r.Latitude, r.Longitude)
			continue
		}

		current, ok := byTrain[r.TrainID]
		if !ok {
			byTrain[r.TrainID] = &TrainPosition{
				TrainID:   r.TrainID,
				StopName:  r.StopName,
				Latitude:  lat,
				Longitude: lng,
				InTransit: r.Departed,
			}
			order = append(order, r.TrainID)
			continue
		}

		if r.Departed {
			*current = TrainPosition{
				TrainID:   r.TrainID,
				StopName:  r.StopName,
				Latitude:  lat,
				Longitude: lng,
				InTransit: true,
			}
		}
	}

	positions := make([]TrainPosition, 0, len(order))
	for _, id := range order {
		positions = append(positions, *byTrain[id])
	}
	return positions
}

// BuildFeed creates a full-dataset feed with one vehicle entity per train.
func BuildFeed(positions []TrainPosition, now time.Time) *gtfs.FeedMessage {
	ts := uint64(now.Unix())

	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(ts),
		},
	}

	for _, pos := range positions {
		status := gtfs.VehiclePosition_STOPPED_AT
		if pos.InTransit {
			status = gtfs.VehiclePosition_IN_TRANSIT_TO
		}

		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id: proto.String(pos.TrainID),
			Vehicle: &gtfs.VehiclePosition{
				Vehicle: &gtfs.VehicleDescriptor{
					Id:    proto.String(pos.TrainID),
					Label: proto.String(pos.StopName),
				},
				Position: &gtfs.Position{
					Latitude:  proto.Float32(float32(pos.Latitude)),
					Longitude: proto.Float32(float32(pos.Longitude)),
				},
				CurrentStatus: status.Enum(),
				Timestamp:     proto.Uint64(ts),
			},
		})
	}

	return feed
}

// WriteVehiclePositions writes the current positions derived from records
// to path, replacing any previous snapshot atomically. It returns the
// number of entities written.
func WriteVehiclePositions(path string, records []models.PositionRecord, now time.Time) (int, error) {
	positions := CurrentPositions(records)
	feed := BuildFeed(positions, now)

	data, err := proto.Marshal(feed)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal feed: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".vehicle_positions-*.pb")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return len(positions), nil
}
