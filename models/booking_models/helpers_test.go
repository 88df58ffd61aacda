package booking_models

import (
	"time"

	"github.com/joy095/dispatch/utils/geo"
)

func pointAt(lon, lat float64) geo.Point { return geo.Point{Lon: lon, Lat: lat} }

func fixedTime() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
