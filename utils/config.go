package utils

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

var DataDir = "."

const AcquisitionTimeFormat = "2006-01-02 15:04"

// InputConfig holds the paths of the preprocessed input products.
type InputConfig struct {
	Reflectance string `yaml:"reflectance" json:"reflectance"`
	Biophysical string `yaml:"biophysical" json:"biophysical"`
	SunZenith   string `yaml:"sun_zenith" json:"sun_zenith"`
	Landcover   string `yaml:"landcover" json:"landcover"`
	Elevation   string `yaml:"elevation" json:"elevation"`
	LST         string `yaml:"lst" json:"lst"`
	LSTQuality  string `yaml:"lst_quality" json:"lst_quality"`
	Geometry    string `yaml:"geometry" json:"geometry"`
	Meteo       string `yaml:"meteo" json:"meteo"`
	Mask        string `yaml:"mask" json:"mask"`
}

type LeafSpectraConfig struct {
	// LegacyNIRTransmittance copies the clamped NIR reflectance into
	// trans_nir_c, reproducing products made by earlier releases.
	LegacyNIRTransmittance bool `yaml:"legacy_nir_transmittance" json:"legacy_nir_transmittance"`
}

type FractionGreenConfig struct {
	MinFracGreen float64 `yaml:"min_frac_green" json:"min_frac_green"`
}

type StructuralParamsConfig struct {
	Landcover        bool `yaml:"igbp_classification" json:"igbp_classification"`
	VegHeight        bool `yaml:"veg_height" json:"veg_height"`
	FracCover        bool `yaml:"veg_fractional_cover" json:"veg_fractional_cover"`
	HeightWidthRatio bool `yaml:"veg_height_width_ratio" json:"veg_height_width_ratio"`
	LeafWidth        bool `yaml:"veg_leaf_width" json:"veg_leaf_width"`
	LeafInclination  bool `yaml:"veg_inclination_distribution" json:"veg_inclination_distribution"`
}

type RoughnessConfig struct {
	SoilRoughness float64 `yaml:"soil_roughness" json:"soil_roughness"`
}

type ShortwaveConfig struct {
	SoilReflectanceVIS float64 `yaml:"soil_reflectance_vis" json:"soil_reflectance_vis"`
	SoilReflectanceNIR float64 `yaml:"soil_reflectance_nir" json:"soil_reflectance_nir"`
}

type LongwaveConfig struct {
	MeasurementHeight float64 `yaml:"measurement_height" json:"measurement_height"`
}

type SharpenerConfig struct {
	MovingWindowSize       int      `yaml:"moving_window_size" json:"moving_window_size"`
	ParallelJobs           int      `yaml:"parallel_jobs" json:"parallel_jobs"`
	CVHomogeneityThreshold float64  `yaml:"cv_homogeneity_threshold" json:"cv_homogeneity_threshold"`
	GoodQualityFlags       []int    `yaml:"good_quality_flags" json:"good_quality_flags"`
	ReflectanceBands       []string `yaml:"reflectance_bands" json:"reflectance_bands"`
	NumEstimators          int      `yaml:"n_estimators" json:"n_estimators"`
	MaxSamples             float64  `yaml:"max_samples" json:"max_samples"`
	MaxFeatures            float64  `yaml:"max_features" json:"max_features"`
	MinSamplesLeaf         int      `yaml:"min_samples_leaf" json:"min_samples_leaf"`
	MaxDepth               int      `yaml:"max_depth" json:"max_depth"`
	LinearLeaves           bool     `yaml:"linear_leaves" json:"linear_leaves"`
	Seed                   int64    `yaml:"seed" json:"seed"`
	HorizontalScale        float64  `yaml:"horizontal_scale" json:"horizontal_scale"`
	SaveResidual           bool     `yaml:"save_residual" json:"save_residual"`
}

type EnergyBalanceConfig struct {
	SoilRoughness     float64 `yaml:"soil_roughness" json:"soil_roughness"`
	AlphaPT           float64 `yaml:"alpha_pt" json:"alpha_pt"`
	MeasurementHeight float64 `yaml:"measurement_height" json:"measurement_height"`
	GreenEmissivity   float64 `yaml:"green_emissivity" json:"green_emissivity"`
	SoilEmissivity    float64 `yaml:"soil_emissivity" json:"soil_emissivity"`
	GroundHeatRatio   float64 `yaml:"ground_heat_ratio" json:"ground_heat_ratio"`
	ValidMask         string  `yaml:"valid_mask" json:"valid_mask"`
	SaveComponentFlux bool    `yaml:"save_component_fluxes" json:"save_component_fluxes"`
	SaveComponentTemp bool    `yaml:"save_component_temperatures" json:"save_component_temperatures"`
	SaveAerodynamic   bool    `yaml:"save_aerodynamic_parameters" json:"save_aerodynamic_parameters"`
}

type MetricsConfig struct {
	LogDir         string `yaml:"log_dir" json:"log_dir"`
	MaxLogFileSize int64  `yaml:"max_log_file_size" json:"max_log_file_size"`
	MaxLogFiles    int    `yaml:"max_log_files" json:"max_log_files"`
	Namespace      string `yaml:"namespace" json:"namespace"`
}

type LedgerConfig struct {
	DSN      string `yaml:"dsn" json:"dsn"`
	Table    string `yaml:"table" json:"table"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// Config describes one ET run.
type Config struct {
	LookupTable       string  `yaml:"lookup_table" json:"lookup_table"`
	LandcoverBand     string  `yaml:"landcover_band" json:"landcover_band"`
	ElevationBand     string  `yaml:"elevation_band" json:"elevation_band"`
	LSTBand           string  `yaml:"lst_band" json:"lst_band"`
	AcquisitionTime   string  `yaml:"acquisition_time" json:"acquisition_time"`
	StandardLongitude float64 `yaml:"standard_longitude" json:"standard_longitude"`
	ScratchDir        string  `yaml:"scratch_dir" json:"scratch_dir"`
	Timeout           string  `yaml:"timeout" json:"timeout"`
	OutputDir         string  `yaml:"output_dir" json:"output_dir"`

	Inputs           InputConfig            `yaml:"inputs" json:"inputs"`
	LeafSpectra      LeafSpectraConfig      `yaml:"leaf_spectra" json:"leaf_spectra"`
	FractionGreen    FractionGreenConfig    `yaml:"fraction_green" json:"fraction_green"`
	StructuralParams StructuralParamsConfig `yaml:"structural_params" json:"structural_params"`
	Roughness        RoughnessConfig        `yaml:"roughness" json:"roughness"`
	Shortwave        ShortwaveConfig        `yaml:"shortwave" json:"shortwave"`
	Longwave         LongwaveConfig         `yaml:"longwave" json:"longwave"`
	Sharpener        SharpenerConfig        `yaml:"sharpener" json:"sharpener"`
	EnergyBalance    EnergyBalanceConfig    `yaml:"energy_balance" json:"energy_balance"`
	Metrics          MetricsConfig          `yaml:"metrics" json:"metrics"`
	Ledger           LedgerConfig           `yaml:"ledger" json:"ledger"`
}

// NewConfig returns a configuration carrying every default. Config files
// are decoded on top of it so absent keys keep their default.
func NewConfig() *Config {
	return &Config{
		LookupTable:   "ESA_CCI_LUT.csv",
		LandcoverBand: "land_cover_class",
		ElevationBand: "elevation",
		LSTBand:       "LST",
		LeafSpectra:   LeafSpectraConfig{LegacyNIRTransmittance: true},
		FractionGreen: FractionGreenConfig{MinFracGreen: 0.01},
		StructuralParams: StructuralParamsConfig{
			Landcover:        true,
			VegHeight:        true,
			FracCover:        true,
			HeightWidthRatio: true,
			LeafWidth:        true,
			LeafInclination:  true,
		},
		Roughness: RoughnessConfig{SoilRoughness: 0.01},
		Shortwave: ShortwaveConfig{SoilReflectanceVIS: 0.15, SoilReflectanceNIR: 0.25},
		Longwave:  LongwaveConfig{MeasurementHeight: 100},
		Sharpener: SharpenerConfig{
			MovingWindowSize: 30,
			ParallelJobs:     1,
			GoodQualityFlags: []int{1},
			NumEstimators:    30,
			MaxSamples:       0.8,
			MaxFeatures:      0.8,
			MinSamplesLeaf:   10,
			LinearLeaves:     true,
			Seed:             42,
			HorizontalScale:  1,
		},
		EnergyBalance: EnergyBalanceConfig{
			SoilRoughness:     0.01,
			AlphaPT:           1.28,
			MeasurementHeight: 100,
			GreenEmissivity:   0.99,
			SoilEmissivity:    0.99,
			GroundHeatRatio:   0.35,
			ValidMask:         "mask == 1",
			SaveComponentFlux: true,
			SaveComponentTemp: true,
			SaveAerodynamic:   true,
		},
		Metrics: MetricsConfig{Namespace: "senet"},
		Ledger:  LedgerConfig{Table: "senet_runs", PoolSize: 2},
	}
}

// LoadConfigFile decodes a YAML or JSON (by extension) config document on
// top of the defaults and validates it.
func (config *Config) LoadConfigFile(configFile string) error {
	*config = *NewConfig()
	cfg, err := ioutil.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("Error while reading config file: %s. Error: %v", configFile, err)
	}

	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".json":
		err = json.Unmarshal(cfg, config)
		if err != nil {
			return fmt.Errorf("Error at JSON parsing config document: %s. Error: %v: %w", configFile, err, ErrConfig)
		}
	default:
		err = yaml.UnmarshalStrict(cfg, config)
		if err != nil {
			return fmt.Errorf("Error at YAML parsing config document: %s. Error: %v: %w", configFile, err, ErrConfig)
		}
	}

	return config.Validate()
}

// Validate range-checks every scalar. Errors wrap ErrConfig.
func (config *Config) Validate() error {
	check := func(ok bool, format string, args ...interface{}) error {
		if ok {
			return nil
		}
		return fmt.Errorf(format+": %w", append(args, ErrConfig)...)
	}

	fg := config.FractionGreen.MinFracGreen
	sh := config.Sharpener
	eb := config.EnergyBalance
	checks := []error{
		check(fg >= 0.01 && fg <= 1, "fraction_green.min_frac_green must be within [0.01, 1], got %v", fg),
		check(config.Roughness.SoilRoughness > 0 && config.Roughness.SoilRoughness <= 1, "roughness.soil_roughness must be within (0, 1], got %v", config.Roughness.SoilRoughness),
		check(inUnit(config.Shortwave.SoilReflectanceVIS), "shortwave.soil_reflectance_vis must be within [0, 1]"),
		check(inUnit(config.Shortwave.SoilReflectanceNIR), "shortwave.soil_reflectance_nir must be within [0, 1]"),
		check(config.Longwave.MeasurementHeight > 0, "longwave.measurement_height must be positive"),
		check(sh.MovingWindowSize >= 0, "sharpener.moving_window_size must not be negative"),
		check(sh.ParallelJobs >= 1, "sharpener.parallel_jobs must be at least 1, got %d", sh.ParallelJobs),
		check(sh.CVHomogeneityThreshold >= 0 && sh.CVHomogeneityThreshold <= 1, "sharpener.cv_homogeneity_threshold must be within [0, 1]"),
		check(len(sh.GoodQualityFlags) > 0, "sharpener.good_quality_flags must not be empty"),
		check(sh.NumEstimators >= 1, "sharpener.n_estimators must be at least 1"),
		check(sh.MaxSamples > 0 && sh.MaxSamples <= 1, "sharpener.max_samples must be within (0, 1]"),
		check(sh.MaxFeatures > 0 && sh.MaxFeatures <= 1, "sharpener.max_features must be within (0, 1]"),
		check(sh.MinSamplesLeaf >= 1, "sharpener.min_samples_leaf must be at least 1"),
		check(sh.MaxDepth >= 0, "sharpener.max_depth must not be negative"),
		check(sh.HorizontalScale > 0, "sharpener.horizontal_scale must be positive"),
		check(eb.SoilRoughness > 0, "energy_balance.soil_roughness must be positive"),
		check(eb.AlphaPT > 0, "energy_balance.alpha_pt must be positive"),
		check(eb.MeasurementHeight > 0, "energy_balance.measurement_height must be positive"),
		check(eb.GreenEmissivity > 0 && eb.GreenEmissivity <= 1, "energy_balance.green_emissivity must be within (0, 1]"),
		check(eb.SoilEmissivity > 0 && eb.SoilEmissivity <= 1, "energy_balance.soil_emissivity must be within (0, 1]"),
		check(inUnit(eb.GroundHeatRatio), "energy_balance.ground_heat_ratio must be within [0, 1]"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if config.AcquisitionTime != "" {
		if _, err := config.AcquisitionUTC(); err != nil {
			return err
		}
	}
	if _, err := config.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := ParseMaskExpression(eb.ValidMask); err != nil {
		return err
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// AcquisitionUTC parses the acquisition time.
func (config *Config) AcquisitionUTC() (time.Time, error) {
	t, err := time.Parse(AcquisitionTimeFormat, config.AcquisitionTime)
	if err != nil {
		return t, fmt.Errorf("acquisition_time %q is not in %q format: %w", config.AcquisitionTime, AcquisitionTimeFormat, ErrConfig)
	}
	return t.UTC(), nil
}

// TimeoutDuration is zero when no run timeout is configured.
func (config *Config) TimeoutDuration() (time.Duration, error) {
	if config.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(config.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("timeout %q is not a valid duration: %w", config.Timeout, ErrConfig)
	}
	return d, nil
}

// Dump renders the effective configuration.
func (config *Config) Dump() (string, error) {
	out, err := yaml.Marshal(config)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
