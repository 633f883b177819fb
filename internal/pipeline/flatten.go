package pipeline

import (
	"fmt"
	"time"

	"github.com/irail-csv/pipeline/internal/irail"
	"github.com/irail-csv/pipeline/internal/models"
)

const unknownTrainType = "UNKNOWN"

// LiveboardRecords are the rows produced by one liveboard response.
type LiveboardRecords struct {
	Station    models.StationObservation
	NewTrains  []models.TrainRecord
	Departures []models.Departure
}

// FlattenLiveboard maps a liveboard response to flat records. Trains whose
// ID is in known, or that already appeared earlier in the same board, are
// not returned as new trains. Departures without a vehicle ID are skipped.
func FlattenLiveboard(station string, board *irail.Liveboard, known map[string]struct{}, now time.Time) (LiveboardRecords, error) {
	recordedAt := formatTime(now)
	out := LiveboardRecords{
		Station: models.StationObservation{StationName: station, RecordedAt: recordedAt},
	}
	if board == nil {
		return out, nil
	}

	seen := make(map[string]struct{})
	for i, dep := range board.Departures.Departure {
		trainID := dep.Vehicle
		if trainID == "" {
			continue
		}

		epoch, err := dep.Time.Int()
		if err != nil {
			return LiveboardRecords{}, fmt.Errorf("departure %d of %s: invalid time %q: %w", i, station, dep.Time.Value, err)
		}
		delay, err := dep.Delay.IntOr(0)
		if err != nil {
			return LiveboardRecords{}, fmt.Errorf("departure %d of %s: invalid delay %q: %w", i, station, dep.Delay.Value, err)
		}

		trainType := departureTrainType(dep)
		if _, ok := known[trainID]; !ok {
			if _, dup := seen[trainID]; !dup {
				out.NewTrains = append(out.NewTrains, models.TrainRecord{TrainID: trainID, TrainType: trainType})
				seen[trainID] = struct{}{}
			}
		}

		scheduled := time.Unix(epoch, 0)
		actual := scheduled.Add(time.Duration(delay) * time.Second)

		out.Departures = append(out.Departures, models.Departure{
			Station:       station,
			TrainID:       trainID,
			Destination:   dep.Station,
			Platform:      dep.Platform.String(),
			ScheduledTime: formatTime(scheduled),
			ActualTime:    formatTime(actual),
			DelaySeconds:  int(delay),
			TrainType:     trainType,
			RecordedAt:    recordedAt,
		})
	}

	return out, nil
}

// FlattenConnections maps a connections response to one record per
// itinerary. Duration is truncated to whole minutes; the transfer count is
// the number of vias.
func FlattenConnections(from, to string, conns *irail.Connections, now time.Time) ([]models.ConnectionRecord, error) {
	if conns == nil {
		return nil, nil
	}

	recordedAt := formatTime(now)
	records := make([]models.ConnectionRecord, 0, len(conns.Connection))
	for i, conn := range conns.Connection {
		seconds, err := conn.Duration.Int()
		if err != nil {
			return nil, fmt.Errorf("connection %d %s -> %s: invalid duration %q: %w", i, from, to, conn.Duration.Value, err)
		}

		records = append(records, models.ConnectionRecord{
			FromStation:          from,
			ToStation:            to,
			TotalDurationMinutes: int(seconds / 60),
			TransferCount:        len(conn.Vias.Via),
			RecordedAt:           recordedAt,
		})
	}
	return records, nil
}

// FlattenVehicle maps a vehicle response to one position per stop that
// carries both coordinates. Stops missing either coordinate are skipped.
func FlattenVehicle(trainID string, vehicle *irail.Vehicle, now time.Time) []models.PositionRecord {
	if vehicle == nil {
		return nil
	}

	recordedAt := formatTime(now)
	var records []models.PositionRecord
	for _, stop := range vehicle.Stops.Stop {
		info := stop.StationInfo
		if !info.LocationX.Set || !info.LocationY.Set {
			continue
		}

		records = append(records, models.PositionRecord{
			TrainID:    trainID,
			Latitude:   info.LocationY.String(),
			Longitude:  info.LocationX.String(),
			RecordedAt: recordedAt,
			StopName:   stop.Station,
			Departed:   stop.Left.Flag(),
		})
	}
	return records
}

func departureTrainType(dep irail.Departure) string {
	if dep.VehicleInfo.Type != "" {
		return dep.VehicleInfo.Type
	}
	if dep.Type != "" {
		return dep.Type
	}
	return unknownTrainType
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
