package trip

import (
	"fmt"

	"github.com/chrissnell/tmdtools/internal/errkind"
	"github.com/chrissnell/tmdtools/internal/timeseries"
)

// NormColumn is the accelerometer magnitude column added by LoadSensorTables.
const NormColumn = "norm"

// LoadSensorTables reads the accelerometer and GPS recordings of a trip.
// The accelerometer table is cleaned (NaN rows dropped, duplicate timestamps
// collapsed) and extended with a NormColumn. The GPS table is cleaned the
// same way and restricted to the accelerometer's time range.
//
// A trip without accelerometer data yields ErrMalformedInput. A trip
// without GPS data yields the accelerometer table and ErrNoGPSData.
func LoadSensorTables(t *Trip) (accel, gps *timeseries.Table, err error) {
	af, ok := t.Data[SensorAccelerometer]
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w: no accelerometer file", t, errkind.ErrMalformedInput)
	}
	raw, err := af.Read()
	if err != nil {
		return nil, nil, err
	}
	accel, err = raw.DropNaN().Dedup().WithNorm(NormColumn, "x", "y", "z")
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %v", af.Path, errkind.ErrMalformedInput, err)
	}

	gf, ok := t.Data[SensorGPS]
	if !ok {
		return accel, nil, fmt.Errorf("%s: %w", t, errkind.ErrNoGPSData)
	}
	raw, err = gf.Read()
	if err != nil {
		return accel, nil, err
	}
	gps = raw.DropNaN().Dedup()

	first, ok := accel.FirstValid()
	if !ok {
		return accel, gps, nil
	}
	last, _ := accel.LastValid()
	return accel, gps.Between(first, last), nil
}
