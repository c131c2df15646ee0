package weather

import (
	"math"
	"strconv"
)

const kelvinOffset = 273.15

// ConvertRange renders a min/max pair for display.
// Celsius converts from Kelvin; any other unit passes the raw values through with a °F suffix.
func ConvertRange(minK, maxK float64, unit Unit) string {
	if unit == Celsius {
		return celsius(minK) + " / " + celsius(maxK) + " " + string(Celsius)
	}
	return raw(minK) + " / " + raw(maxK) + " " + string(Fahrenheit)
}

// DisplayTemp renders a single temperature, or "" when the value is absent (zero or NaN).
func DisplayTemp(tempK float64, unit Unit) string {
	if tempK == 0 || math.IsNaN(tempK) {
		return ""
	}
	if unit == Celsius {
		return celsius(tempK) + " " + string(Celsius)
	}
	return raw(tempK) + " " + string(Fahrenheit)
}

// ToggleUnit returns the next unit: °C becomes °F, anything else becomes °C.
func ToggleUnit(current Unit) Unit {
	if current == Celsius {
		return Fahrenheit
	}
	return Celsius
}

func celsius(k float64) string {
	v := math.Round(k - kelvinOffset)
	if v == 0 {
		v = 0 // drop negative zero
	}
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func raw(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
