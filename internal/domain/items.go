package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ItemSpec describes one pollutant or meteorological variable: display name,
// unit, and the physically plausible value range used for sanity checking.
type ItemSpec struct {
	Name string  `json:"name"`
	Unit string  `json:"unit"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// DefaultItemSpecs returns the deployment's standard item table. Values
// outside [Min, Max] are instrument faults, not real air: the bounds are far
// beyond any recorded ambient level.
func DefaultItemSpecs() map[string]ItemSpec {
	return map[string]ItemSpec{
		"AMB_TEMP":   {Name: "ambient temperature", Unit: "°C", Min: -15, Max: 55},
		"CO":         {Name: "carbon monoxide", Unit: "ppm", Min: 0, Max: 60},
		"NO":         {Name: "nitric oxide", Unit: "ppb", Min: 0, Max: 600},
		"NO2":        {Name: "nitrogen dioxide", Unit: "ppb", Min: 0, Max: 600},
		"NOx":        {Name: "nitrogen oxides", Unit: "ppb", Min: 0, Max: 1200},
		"O3":         {Name: "ozone", Unit: "ppb", Min: 0, Max: 600},
		"PM10":       {Name: "PM10", Unit: "μg/m³", Min: 0, Max: 1200},
		"PM2.5":      {Name: "PM2.5", Unit: "μg/m³", Min: 0, Max: 600},
		"RAINFALL":   {Name: "rainfall", Unit: "mm", Min: 0, Max: 3000},
		"RH":         {Name: "relative humidity", Unit: "%", Min: 0, Max: 100},
		"SO2":        {Name: "sulfur dioxide", Unit: "ppb", Min: 0, Max: 300},
		"WD_HR":      {Name: "hourly wind direction", Unit: "degrees", Min: 0, Max: 360},
		"WIND_DIREC": {Name: "wind direction", Unit: "degrees", Min: 0, Max: 360},
		"WIND_SPEED": {Name: "wind speed", Unit: "m/s", Min: 0, Max: 120},
		"WS_HR":      {Name: "hourly wind speed", Unit: "m/s", Min: 0, Max: 120},
	}
}

// LoadItemSpecs reads an item table from a JSON file mapping item code to
// spec, replacing the built-in defaults entirely.
func LoadItemSpecs(path string) (map[string]ItemSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item specs: %w", err)
	}
	var specs map[string]ItemSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse item specs: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("item specs file %s is empty", path)
	}
	for code, spec := range specs {
		if spec.Min > spec.Max {
			return nil, fmt.Errorf("item %s: min %g exceeds max %g", code, spec.Min, spec.Max)
		}
	}
	return specs, nil
}

// ItemCodes returns the item table's codes in sorted order, used to
// locate baseline tables deterministically.
func ItemCodes(specs map[string]ItemSpec) []string {
	codes := make([]string, 0, len(specs))
	for code := range specs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
