package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/irail-csv/pipeline/internal/models"
)

func TestCurrentPositions(t *testing.T) {
	records := []models.PositionRecord{
		{TrainID: "IC1832", StopName: "Gent-Sint-Pieters", Latitude: "51.035896", Longitude: "3.710675", Departed: true},
		{TrainID: "IC1832", StopName: "Aalst", Latitude: "50.942813", Longitude: "4.039653", Departed: true},
		{TrainID: "IC1832", StopName: "Brussels-South", Latitude: "50.835707", Longitude: "4.336531"},
		{TrainID: "L2970", StopName: "Gent-Sint-Pieters", Latitude: "51.035896", Longitude: "3.710675"},
		{TrainID: "L2970", StopName: "Eeklo", Latitude: "51.181333", Longitude: "3.574515"},
		{TrainID: "S51789", StopName: "Nowhere", Latitude: "north", Longitude: "3.1"},
	}

	positions := CurrentPositions(records)

	require.Len(t, positions, 2)

	assert.Equal(t, "IC1832", positions[0].TrainID)
	assert.Equal(t, "Aalst", positions[0].StopName)
	assert.True(t, positions[0].InTransit)

	assert.Equal(t, "L2970", positions[1].TrainID)
	assert.Equal(t, "Gent-Sint-Pieters", positions[1].StopName)
	assert.False(t, positions[1].InTransit)
	assert.InDelta(t, 51.035896, positions[1].Latitude, 1e-9)
}

func TestBuildFeed(t *testing.T) {
	now := time.Unix(1700000000, 0)
	feed := BuildFeed([]TrainPosition{
		{TrainID: "IC1832", StopName: "Aalst", Latitude: 50.94, Longitude: 4.04, InTransit: true},
		{TrainID: "L2970", StopName: "Gent-Sint-Pieters", Latitude: 51.03, Longitude: 3.71},
	}, now)

	assert.Equal(t, "2.0", feed.GetHeader().GetGtfsRealtimeVersion())
	assert.Equal(t, gtfs.FeedHeader_FULL_DATASET, feed.GetHeader().GetIncrementality())
	assert.Equal(t, uint64(1700000000), feed.GetHeader().GetTimestamp())

	require.Len(t, feed.Entity, 2)
	first := feed.Entity[0].GetVehicle()
	assert.Equal(t, "IC1832", first.GetVehicle().GetId())
	assert.Equal(t, gtfs.VehiclePosition_IN_TRANSIT_TO, first.GetCurrentStatus())
	assert.InDelta(t, 50.94, first.GetPosition().GetLatitude(), 1e-4)
	assert.Equal(t, gtfs.VehiclePosition_STOPPED_AT, feed.Entity[1].GetVehicle().GetCurrentStatus())
}

func TestWriteVehiclePositions_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FeedFile)
	records := []models.PositionRecord{
		{TrainID: "IC1832", StopName: "Gent-Sint-Pieters", Latitude: "51.035896", Longitude: "3.710675"},
	}

	n, err := WriteVehiclePositions(path, records, time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var feed gtfs.FeedMessage
	require.NoError(t, proto.Unmarshal(data, &feed))
	require.Len(t, feed.Entity, 1)
	assert.Equal(t, "IC1832", feed.Entity[0].GetId())

	// A second write replaces the snapshot and leaves no temp files behind
	n, err = WriteVehiclePositions(path, nil, time.Unix(1700000060, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteVehiclePositions_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", FeedFile)

	_, err := WriteVehiclePositions(path, nil, time.Now())
	assert.Error(t, err)
}
