package dto

import (
	"encoding/json"
	"time"
)

// GPSFix is one observed position. The zero value means no fix is known.
type GPSFix struct {
	Lat        float64
	Lon        float64
	Alt        float64 // meters, relative to home
	ObservedAt time.Time
	Valid      bool
}

type gpsFixJSON struct {
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Alt        *float64 `json:"alt"`
	ObservedAt *string  `json:"observed_at"`
	Time       *float64 `json:"time"` // unix seconds
}

// MarshalJSON writes nulls for every field when the fix is unknown.
func (f GPSFix) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return json.Marshal(gpsFixJSON{})
	}
	observed := f.ObservedAt.UTC().Format(time.RFC3339Nano)
	unix := float64(f.ObservedAt.UnixNano()) / 1e9
	return json.Marshal(gpsFixJSON{
		Lat:        &f.Lat,
		Lon:        &f.Lon,
		Alt:        &f.Alt,
		ObservedAt: &observed,
		Time:       &unix,
	})
}

// UnmarshalJSON accepts the output of MarshalJSON.
func (f *GPSFix) UnmarshalJSON(data []byte) error {
	var raw gpsFixJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = GPSFix{}
	if raw.Lat == nil || raw.Lon == nil {
		return nil
	}
	f.Lat, f.Lon, f.Valid = *raw.Lat, *raw.Lon, true
	if raw.Alt != nil {
		f.Alt = *raw.Alt
	}
	switch {
	case raw.ObservedAt != nil:
		ts, err := time.Parse(time.RFC3339Nano, *raw.ObservedAt)
		if err != nil {
			return err
		}
		f.ObservedAt = ts
	case raw.Time != nil:
		f.ObservedAt = time.Unix(0, int64(*raw.Time*1e9))
	}
	return nil
}
