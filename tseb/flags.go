package tseb

// Quality flags reported per pixel.
const (
	FlagAllFluxes          = 0
	FlagZeroLESoil         = 1
	FlagZeroLE             = 2
	FlagZeroLECanopy       = 3
	FlagInvalidTemperature = 5
	FlagNotConverged       = 6
	FlagNotProcessed       = 255
)

// FlagName returns a short label for a quality flag.
func FlagName(flag int) string {
	switch flag {
	case FlagAllFluxes:
		return "all_fluxes"
	case FlagZeroLESoil:
		return "zero_le_soil"
	case FlagZeroLE:
		return "zero_le"
	case FlagZeroLECanopy:
		return "zero_le_canopy"
	case FlagInvalidTemperature:
		return "invalid_temperature"
	case FlagNotConverged:
		return "not_converged"
	case FlagNotProcessed:
		return "not_processed"
	}
	return "unknown"
}
