// internal/store/stations.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/filter"
)

// StationDirectory resolves areas to the filling stations inside them.
// The directory lives in Postgres and changes rarely, so every retrieval
// reads it once up front.
type StationDirectory struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStationDirectory(db *sql.DB, log logger.Logger) *StationDirectory {
	return &StationDirectory{
		db:     db,
		logger: log.With(map[string]interface{}{"component": "stations"}),
	}
}

const stationsByAreaQuery = `
	SELECT station_id, station_name, area_number
	FROM filling_stations
	WHERE area_number = ANY($1)
	ORDER BY area_number, station_id`

// StationsForAreas returns the stations of each requested area, keyed by
// area number. Duplicate rows collapse to one station. An area with no
// stations is simply absent from the result; its sub-queries will match
// nothing, which is a valid empty outcome, not an error.
func (d *StationDirectory) StationsForAreas(ctx context.Context, areas []filter.Area) (map[int][]Station, error) {
	if len(areas) == 0 {
		return map[int][]Station{}, nil
	}

	numbers := make([]int64, 0, len(areas))
	for _, a := range areas {
		numbers = append(numbers, int64(a.Number))
	}

	rows, err := d.db.QueryContext(ctx, stationsByAreaQuery, pq.Array(numbers))
	if err != nil {
		return nil, fmt.Errorf("query station directory: %w", err)
	}
	defer rows.Close()

	byArea := make(map[int][]Station)
	seen := make(map[string]bool)
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.ID, &st.Name, &st.AreaNumber); err != nil {
			return nil, fmt.Errorf("scan station row: %w", err)
		}
		if seen[st.ID] {
			continue
		}
		seen[st.ID] = true
		byArea[st.AreaNumber] = append(byArea[st.AreaNumber], st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read station rows: %w", err)
	}
	return byArea, nil
}
