package weather

import (
	"encoding/json"
	"time"
)

// HourlyView is an hourly entry with its display temperature in the session unit.
type HourlyView struct {
	HourlyEntry
	Display string `json:"display"`
}

// MarshalJSON writes the entry's upstream fields plus display.
func (h HourlyView) MarshalJSON() ([]byte, error) {
	return withField(h.HourlyEntry, "display", h.Display)
}

// DailyView is a daily entry with its min/max range in the session unit.
type DailyView struct {
	DailyEntry
	Range string `json:"range"`
}

func (d DailyView) MarshalJSON() ([]byte, error) {
	return withField(d.DailyEntry, "range", d.Range)
}

// withField adds one key to the JSON object written by entry.
func withField(entry json.Marshaler, key string, value string) ([]byte, error) {
	b, err := entry.MarshalJSON()
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	fields[key] = v
	return json.Marshal(fields)
}

// View is a read-only snapshot of a session for the presentation layer.
type View struct {
	ID          string               `json:"id"`
	City        *CityDetail          `json:"city,omitempty"`
	Display     string               `json:"display"`
	Unit        Unit                 `json:"unit"`
	Anchor      int64                `json:"anchor,omitempty"`
	DefaultCity *Coordinate          `json:"defaultCity,omitempty"`
	Input       InputField           `json:"input"`
	Candidates  []GeocodeCandidate   `json:"candidates"`
	Hourly      []HourlyView         `json:"hourly"`
	Future      []DailyView          `json:"future"`
	Staleness   map[string]Staleness `json:"staleness"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// View returns a copy of the session state with derived display strings.
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit := s.detail.Unit
	v := View{
		ID:         s.id,
		Unit:       unit,
		Anchor:     s.anchor,
		Input:      s.input,
		Candidates: append([]GeocodeCandidate{}, s.candidates...),
		Hourly:     make([]HourlyView, 0, len(s.hourly)),
		Future:     make([]DailyView, 0, len(s.future)),
		Staleness:  make(map[string]Staleness, len(s.staleness)),
		CreatedAt:  s.createdAt,
	}
	if s.selected {
		d := s.detail
		v.City = &d
		v.Display = DisplayTemp(d.Temperature, unit)
	}
	if s.defaultCity != nil {
		c := *s.defaultCity
		v.DefaultCity = &c
	}
	for _, h := range s.hourly {
		v.Hourly = append(v.Hourly, HourlyView{HourlyEntry: h, Display: DisplayTemp(h.Main.Temp, unit)})
	}
	for _, d := range s.future {
		v.Future = append(v.Future, DailyView{DailyEntry: d, Range: ConvertRange(d.Temp.Min, d.Temp.Max, unit)})
	}
	for k, st := range s.staleness {
		v.Staleness[k] = st
	}
	return v
}

// RawHourly returns a copy of the unfiltered hourly list of the latest fetch.
func (s *Session) RawHourly() []HourlyEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HourlyEntry(nil), s.rawHourly...)
}
