package weather

import (
	"encoding/json"
	"fmt"
	"math"
)

// Unit is the user-selected temperature display unit.
type Unit string

const (
	Celsius    Unit = "°C"
	Fahrenheit Unit = "°F"
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate reports ErrInvalidInput unless both fields are finite and in range.
// No remote fetch may be issued for a coordinate that fails validation.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("%w: coordinate must be finite", ErrInvalidInput)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: coordinate out of range (%f, %f)", ErrInvalidInput, c.Lat, c.Lon)
	}
	return nil
}

// GeocodeCandidate is one match for a free-text city query.
// StateCode and CountryCode keep same-named cities distinguishable.
type GeocodeCandidate struct {
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	StateCode   string  `json:"stateCode,omitempty"`
	CountryCode string  `json:"countryCode"`
}

// Coordinate returns the candidate's position.
func (g GeocodeCandidate) Coordinate() Coordinate {
	return Coordinate{Lat: g.Lat, Lon: g.Lon}
}

// CityDetail is the canonical record of the currently selected city.
// Temperature is kept in Kelvin as reported by the source.
type CityDetail struct {
	Coordinate
	CountryCode string  `json:"countryCode"`
	StateCode   string  `json:"stateCode"`
	CityName    string  `json:"cityName"`
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"`
	WeatherIcon string  `json:"weatherIcon"`
	Timezone    int     `json:"timezone"`
	Unit        Unit    `json:"unit"`
}

// NewCityDetail returns an empty detail with the default unit.
func NewCityDetail() CityDetail {
	return CityDetail{Unit: Celsius}
}

// CityDetailUpdate is the result of a successful current-weather fetch.
// Anchor is the report time (seconds since epoch) used to filter hourly data.
type CityDetailUpdate struct {
	Coordinate  Coordinate
	CountryCode string
	StateCode   string
	CityName    string
	Date        string
	Temperature float64
	WeatherIcon string
	Timezone    int
	Anchor      int64
}

// Apply merges the update over d. The unit is preserved.
func (u CityDetailUpdate) Apply(d CityDetail) CityDetail {
	d.Coordinate = u.Coordinate
	d.CountryCode = u.CountryCode
	d.StateCode = u.StateCode
	d.CityName = u.CityName
	d.Date = u.Date
	d.Temperature = u.Temperature
	d.WeatherIcon = u.WeatherIcon
	d.Timezone = u.Timezone
	if d.Unit == "" {
		d.Unit = Celsius
	}
	return d
}

// Condition is a weather condition as reported by the provider.
type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// CurrentConditions is the decoded cityWeather payload.
type CurrentConditions struct {
	Coord Coordinate `json:"coord"`
	Main  struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Weather []Condition `json:"weather"`
	Sys     struct {
		Country string `json:"country"`
	} `json:"sys"`
	State    string `json:"state"`
	Name     string `json:"name"`
	Dt       int64  `json:"dt"`
	Timezone int    `json:"timezone"`
}

// HourlyEntry is one hourly forecast item.
type HourlyEntry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Weather []Condition `json:"weather"`
	Pop     float64     `json:"pop"`
	DtTxt   string      `json:"dt_txt,omitempty"`

	// Raw is the upstream object as received, including fields not modelled above.
	Raw json.RawMessage `json:"-"`
}

func (e *HourlyEntry) UnmarshalJSON(b []byte) error {
	type plain HourlyEntry
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = HourlyEntry(p)
	e.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON writes the upstream object verbatim when it is known.
func (e HourlyEntry) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain HourlyEntry
	return json.Marshal(plain(e))
}

// DailyEntry is one daily forecast item.
type DailyEntry struct {
	Dt   int64 `json:"dt"`
	Temp struct {
		Day   float64 `json:"day"`
		Min   float64 `json:"min"`
		Max   float64 `json:"max"`
		Night float64 `json:"night"`
		Eve   float64 `json:"eve"`
		Morn  float64 `json:"morn"`
	} `json:"temp"`
	Weather  []Condition `json:"weather"`
	Humidity float64     `json:"humidity"`
	Pop      float64     `json:"pop"`

	// Raw is the upstream object as received; the future list is kept verbatim.
	Raw json.RawMessage `json:"-"`
}

func (e *DailyEntry) UnmarshalJSON(b []byte) error {
	type plain DailyEntry
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = DailyEntry(p)
	e.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (e DailyEntry) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain DailyEntry
	return json.Marshal(plain(e))
}

// InputField is the transient free-text entry of the user.
type InputField struct {
	CityName    string `json:"cityName"`
	StateCode   string `json:"stateCode"`
	CountryCode string `json:"countryCode"`
}
