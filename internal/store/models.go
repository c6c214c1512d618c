// internal/store/models.go
package store

import (
	"time"

	"trip-report-bot/internal/filter"
)

// SubQuery is one (category, area) cell of a retrieval request. The
// station ids pin the area: trips carry a filling station reference, not
// an area, so the directory lookup happens before the trip query runs.
type SubQuery struct {
	Category   filter.Category
	Area       filter.Area
	Period     filter.Period
	StationIDs []string
}

// TripRecord is the projection of a trip document used in reports.
type TripRecord struct {
	TripID             string    `bson:"tripId"`
	VehicleNumber      string    `bson:"vehicleNumber"`
	TripCategory       string    `bson:"tripCategory"`
	TripStatus         string    `bson:"tripStatus"`
	TripStartTime      time.Time `bson:"tripStartTime"`
	TripEndTime        time.Time `bson:"tripEndTime"`
	Area               string    `bson:"area"`
	FillingStationID   string    `bson:"fillingStationId"`
	FillingStationName string    `bson:"fillingStationName"`
	DispensedQuantity  float64   `bson:"dispensedQuantity"`
	FillingQuantity    float64   `bson:"fillingQuantity"`
	CardQuantity       float64   `bson:"cardQuantity"`
	CMCNumber          string    `bson:"cmcNumber"`
	CustomerName       string    `bson:"customerName"`
	CustomerAddress    string    `bson:"customerAddress"`
	CreatedAt          time.Time `bson:"createdAt"`
}

// Station is one row of the filling station directory.
type Station struct {
	ID         string
	Name       string
	AreaNumber int
}
