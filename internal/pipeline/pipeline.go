// Package pipeline fetches liveboards, connections and vehicles from iRail,
// flattens them into records and appends them to CSV files.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/irail-csv/pipeline/internal/config"
	"github.com/irail-csv/pipeline/internal/csvstore"
	"github.com/irail-csv/pipeline/internal/export"
	"github.com/irail-csv/pipeline/internal/irail"
	"github.com/irail-csv/pipeline/internal/metrics"
	"github.com/irail-csv/pipeline/internal/models"
)

// Fetcher retrieves decoded API responses. *irail.Client implements it.
type Fetcher interface {
	Liveboard(ctx context.Context, station string) (*irail.Liveboard, error)
	Connections(ctx context.Context, from, to string) (*irail.Connections, error)
	Vehicle(ctx context.Context, id string) (*irail.Vehicle, error)
}

// Pipeline runs one fetch → flatten → append pass per call to Run.
type Pipeline struct {
	cfg     *config.Config
	fetcher Fetcher
	index   KeyIndex
	now     func() time.Time

	stations    csvstore.Table[models.StationObservation]
	trains      csvstore.Table[models.TrainRecord]
	departures  csvstore.Table[models.Departure]
	connections csvstore.Table[models.ConnectionRecord]
	positions   csvstore.Table[models.PositionRecord]
}

// New creates a pipeline writing into cfg.OutputDirectory. A nil index
// falls back to reading the registry CSV file.
func New(cfg *config.Config, fetcher Fetcher, index KeyIndex) *Pipeline {
	dir := cfg.OutputDirectory
	p := &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		index:   index,
		now:     time.Now,

		stations:    csvstore.NewTable[models.StationObservation](dir, models.StationsFile, models.StationFields),
		trains:      csvstore.NewTable[models.TrainRecord](dir, models.TrainsFile, models.TrainFields),
		departures:  csvstore.NewTable[models.Departure](dir, models.DeparturesFile, models.DepartureFields),
		connections: csvstore.NewTable[models.ConnectionRecord](dir, models.ConnectionsFile, models.ConnectionFields),
		positions:   csvstore.NewTable[models.PositionRecord](dir, models.PositionsFile, models.PositionFields),
	}
	if p.index == nil {
		p.index = NewFileIndex(p.trains.Path)
	}
	return p
}

// SetClock replaces the time source, for tests.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Run processes every configured station, route and vehicle once. A failing
// item is logged and recorded in the summary; the remaining items still run.
// Run stops early only when ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) *models.RunSummary {
	summary := &models.RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: p.now().UTC(),
	}

	var delays metrics.DelayAccumulator
	var seenTrains []string

	for _, station := range p.cfg.Stations {
		if ctx.Err() != nil {
			break
		}
		item, trainIDs := p.processLiveboard(ctx, station, &delays)
		p.record(summary, item)
		seenTrains = append(seenTrains, trainIDs...)
	}

	for _, route := range p.cfg.Routes {
		if ctx.Err() != nil {
			break
		}
		p.record(summary, p.processConnections(ctx, route))
	}

	var positions []models.PositionRecord
	for _, trainID := range p.vehicleTargets(seenTrains) {
		if ctx.Err() != nil {
			break
		}
		item, records := p.processVehicle(ctx, trainID)
		p.record(summary, item)
		positions = append(positions, records...)
	}

	if p.cfg.ExportGTFSRT && ctx.Err() == nil {
		p.record(summary, p.exportPositions(positions))
	}

	if ctx.Err() != nil {
		log.Printf("Pipeline: run %s interrupted: %v", summary.RunID, ctx.Err())
	}

	summary.Delays = models.DelayStats{
		Count:         delays.Count(),
		MeanSeconds:   delays.Mean(),
		StdDevSeconds: delays.StdDev(),
	}
	summary.FinishedAt = p.now().UTC()
	return summary
}

func (p *Pipeline) record(summary *models.RunSummary, item models.ItemResult) {
	if item.Err != nil {
		log.Printf("Pipeline: error fetching %s for %s: %v", item.Kind, item.Target, item.Err)
	}
	summary.Add(item)
}

// processLiveboard records one station and returns the train IDs it listed.
func (p *Pipeline) processLiveboard(ctx context.Context, station string, delays *metrics.DelayAccumulator) (models.ItemResult, []string) {
	item := models.ItemResult{Kind: models.KindLiveboard, Target: station}

	board, err := p.fetcher.Liveboard(ctx, station)
	if err != nil {
		item.Err = err
		return item, nil
	}

	known, err := p.index.Known(ctx)
	if err != nil {
		item.Err = fmt.Errorf("failed to load train registry: %w", err)
		return item, nil
	}

	records, err := FlattenLiveboard(station, board, known, p.now())
	if err != nil {
		item.Err = err
		return item, nil
	}

	n, err := p.trains.Append(records.NewTrains)
	item.Rows += n
	if err != nil {
		item.Err = err
		return item, nil
	}
	if err := p.index.Remember(ctx, records.NewTrains); err != nil {
		item.Err = fmt.Errorf("failed to update train registry: %w", err)
		return item, nil
	}

	n, err = p.departures.Append(records.Departures)
	item.Rows += n
	if err != nil {
		item.Err = err
		return item, nil
	}

	n, err = p.stations.Append([]models.StationObservation{records.Station})
	item.Rows += n
	if err != nil {
		item.Err = err
		return item, nil
	}

	trainIDs := make([]string, 0, len(records.Departures))
	for _, dep := range records.Departures {
		delays.Observe(float64(dep.DelaySeconds))
		trainIDs = append(trainIDs, dep.TrainID)
	}

	log.Printf("Pipeline: %s: %d departures, %d new trains", station, len(records.Departures), len(records.NewTrains))
	return item, trainIDs
}

func (p *Pipeline) processConnections(ctx context.Context, route config.Route) models.ItemResult {
	item := models.ItemResult{Kind: models.KindConnections, Target: route.String()}

	conns, err := p.fetcher.Connections(ctx, route.From, route.To)
	if err != nil {
		item.Err = err
		return item
	}

	records, err := FlattenConnections(route.From, route.To, conns, p.now())
	if err != nil {
		item.Err = err
		return item
	}

	item.Rows, item.Err = p.connections.Append(records)
	if item.Err == nil {
		log.Printf("Pipeline: %s: %d connections", route, len(records))
	}
	return item
}

func (p *Pipeline) processVehicle(ctx context.Context, trainID string) (models.ItemResult, []models.PositionRecord) {
	item := models.ItemResult{Kind: models.KindVehicle, Target: trainID}

	vehicle, err := p.fetcher.Vehicle(ctx, trainID)
	if err != nil {
		item.Err = err
		return item, nil
	}

	records := FlattenVehicle(trainID, vehicle, p.now())
	item.Rows, item.Err = p.positions.Append(records)
	if item.Err != nil {
		return item, nil
	}
	return item, records
}

func (p *Pipeline) exportPositions(positions []models.PositionRecord) models.ItemResult {
	path := p.cfg.OutputPath(export.FeedFile)
	item := models.ItemResult{Kind: models.KindExport, Target: path}

	// Feed entities are not CSV rows; the item reports zero rows written
	entities, err := export.WriteVehiclePositions(path, positions, p.now())
	if err != nil {
		item.Err = err
		return item
	}
	log.Printf("Export: wrote %d vehicle positions to %s", entities, path)
	return item
}

// vehicleTargets returns the configured vehicles followed by up to
// FollowDepartures distinct trains seen on this run's liveboards.
func (p *Pipeline) vehicleTargets(seen []string) []string {
	targets := make([]string, 0, len(p.cfg.Vehicles)+p.cfg.FollowDepartures)
	added := make(map[string]struct{})

	for _, id := range p.cfg.Vehicles {
		if _, ok := added[id]; ok {
			continue
		}
		added[id] = struct{}{}
		targets = append(targets, id)
	}

	followed := 0
	for _, id := range seen {
		if followed >= p.cfg.FollowDepartures {
			break
		}
		if _, ok := added[id]; ok {
			continue
		}
		added[id] = struct{}{}
		targets = append(targets, id)
		followed++
	}

	return targets
}
