package model

// JoulesPerKWh converts joules to kilowatt-hours.
const JoulesPerKWh = 3.6e6

// CarbonReport is the `{ci, eu, ce}` triple produced by the carbon reporter (C3).
type CarbonReport struct {
	CarbonIntensityGCO2KWh float64 `json:"carbon_intensity_gco2_kwh"`
	EnergyUseJoules        float64 `json:"energy_use_joules"`
	CarbonEmissionGCO2     float64 `json:"carbon_emission_gco2"`
}

// NewCarbonReport computes ce = ci * (eu / 3.6e6) as specified in §4.3.
func NewCarbonReport(carbonIntensity, energyUseJoules float64) CarbonReport {
	return CarbonReport{
		CarbonIntensityGCO2KWh: carbonIntensity,
		EnergyUseJoules:        energyUseJoules,
		CarbonEmissionGCO2:     carbonIntensity * (energyUseJoules / JoulesPerKWh),
	}
}
