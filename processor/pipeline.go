package processor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/nci/senet/metrics"
	"github.com/nci/senet/tseb"
	"github.com/nci/senet/utils"
	"github.com/rs/zerolog"
	"golang.org/x/net/context"
)

// Stage names in execution order.
const (
	StageLeafSpectra      = "leaf_spectra"
	StageFractionGreen    = "fraction_green"
	StageStructuralParams = "structural_params"
	StageRoughness        = "aerodynamic_roughness"
	StageLongwave         = "longwave_irradiance"
	StageShortwave        = "net_shortwave_radiation"
	StageSharpen          = "sharpen"
	StageEnergyFluxes     = "energy_fluxes"
	StageDailyET          = "daily_evapotranspiration"
)

// Inputs are the preprocessed products of one acquisition.
type Inputs struct {
	Reflectance *utils.Product
	Biophysical *utils.Product
	SunZenith   *utils.Product
	Landcover   *utils.Product
	Elevation   *utils.Product
	LST         *utils.Product
	LSTQuality  *utils.Product
	Geometry    *utils.Product
	Meteo       *utils.Product
	Mask        *utils.Product
}

// LoadInputs reads every input product named in cfg.
func LoadInputs(cfg utils.InputConfig) (*Inputs, error) {
	in := &Inputs{}
	for _, p := range []struct {
		name string
		path string
		dst  **utils.Product
	}{
		{"reflectance", cfg.Reflectance, &in.Reflectance},
		{"biophysical", cfg.Biophysical, &in.Biophysical},
		{"sun_zenith", cfg.SunZenith, &in.SunZenith},
		{"landcover", cfg.Landcover, &in.Landcover},
		{"elevation", cfg.Elevation, &in.Elevation},
		{"lst", cfg.LST, &in.LST},
		{"lst_quality", cfg.LSTQuality, &in.LSTQuality},
		{"geometry", cfg.Geometry, &in.Geometry},
		{"meteo", cfg.Meteo, &in.Meteo},
		{"mask", cfg.Mask, &in.Mask},
	} {
		if p.path == "" {
			return nil, fmt.Errorf("input %s is not set: %w", p.name, utils.ErrConfig)
		}
		prod, err := utils.ReadProduct(p.path)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", p.name, err)
		}
		*p.dst = prod
	}
	return in, nil
}

// Outputs holds the product of every stage that ran, by stage name.
type Outputs struct {
	Products map[string]*utils.Product
	Classes  *PixelClasses
}

// Daily returns the final daily evapotranspiration product.
func (o *Outputs) Daily() *utils.Product {
	return o.Products[StageDailyET]
}

// Pipeline runs every stage of the ET chain in order over in-memory
// products. Stages run one at a time; only the sharpener fans out.
type Pipeline struct {
	Config    *utils.Config
	LUT       *utils.LookupTable
	Log       zerolog.Logger
	Collector *metrics.Collector
	Metrics   *metrics.MetricsCollector
}

func NewPipeline(config *utils.Config, lut *utils.LookupTable, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		Config:  config,
		LUT:     lut,
		Log:     log,
		Metrics: metrics.NewMetricsCollector(nil),
	}
}

type stage struct {
	name string
	run  func(ctx context.Context) (*utils.Product, error)
}

// Run executes the chain. Configuration is validated before any stage
// runs; the first stage error aborts the run with no further output.
func (p *Pipeline) Run(ctx context.Context, in *Inputs) (*Outputs, error) {
	cfg := p.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	acquired, err := cfg.AcquisitionUTC()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if p.LUT == nil {
		return nil, fmt.Errorf("no lookup table: %w", utils.ErrConfig)
	}

	classes, err := p.classify(in)
	if err != nil {
		return nil, err
	}
	info := p.Metrics.Info
	info.Acquisition = acquired.Format(utils.AcquisitionTimeFormat)
	info.Width, info.Height = classes.LAI.Width, classes.LAI.Height
	info.Processed, info.NotProcessed = classes.Processed(), classes.NotProcessed()

	out := &Outputs{Products: make(map[string]*utils.Product), Classes: classes}
	prod := func(name string) *utils.Product { return out.Products[name] }

	stages := []stage{
		{StageLeafSpectra, func(context.Context) (*utils.Product, error) {
			return LeafSpectra(in.Biophysical, cfg.LeafSpectra)
		}},
		{StageFractionGreen, func(context.Context) (*utils.Product, error) {
			return FractionGreen(in.SunZenith, in.Biophysical, cfg.FractionGreen.MinFracGreen)
		}},
		{StageStructuralParams, func(context.Context) (*utils.Product, error) {
			bs := newBandSet("structural parameters")
			landcover := bs.get(in.Landcover, cfg.LandcoverBand)
			fg := bs.get(prod(StageFractionGreen), "frac_green")
			if err := bs.check(); err != nil {
				return nil, err
			}
			return StructuralParams(landcover, classes.LAI, fg, p.LUT, cfg.StructuralParams)
		}},
		{StageRoughness, func(context.Context) (*utils.Product, error) {
			return AerodynamicRoughness(classes, prod(StageStructuralParams), cfg.Roughness.SoilRoughness)
		}},
		{StageLongwave, func(context.Context) (*utils.Product, error) {
			return LongwaveIrradiance(in.Meteo, cfg.Longwave.MeasurementHeight)
		}},
		{StageShortwave, func(context.Context) (*utils.Product, error) {
			return NetShortwaveRadiation(classes, ShortwaveInputs{
				LeafSpectra: prod(StageLeafSpectra),
				Structure:   prod(StageStructuralParams),
				Meteo:       in.Meteo,
				Geometry:    in.Geometry,
			}, cfg.Shortwave)
		}},
		{StageSharpen, func(ctx context.Context) (*utils.Product, error) {
			sharpened, stats, err := Sharpen(ctx, SharpenInputs{
				Reflectance: in.Reflectance,
				Elevation:   in.Elevation,
				Geometry:    in.Geometry,
				LST:         in.LST,
				LSTQuality:  in.LSTQuality,
			}, SharpenOptions{
				Sharpener:         cfg.Sharpener,
				ElevationBand:     cfg.ElevationBand,
				LSTBand:           cfg.LSTBand,
				Acquired:          acquired,
				StandardLongitude: cfg.StandardLongitude,
				ScratchDir:        cfg.ScratchDir,
			}, p.Log.With().Str("stage", StageSharpen).Logger())
			if err != nil {
				return nil, err
			}
			p.recordSharpener(stats.GoodCells, stats.TrainingSamples, stats.LocalModels, stats.CVThreshold, stats.GlobalMSE)
			return sharpened, nil
		}},
		{StageEnergyFluxes, func(context.Context) (*utils.Product, error) {
			fluxes, err := EnergyFluxes(classes, EnergyInputs{
				LST:       prod(StageSharpen),
				Geometry:  in.Geometry,
				Structure: prod(StageStructuralParams),
				FracGreen: prod(StageFractionGreen),
				Roughness: prod(StageRoughness),
				Meteo:     in.Meteo,
				Shortwave: prod(StageShortwave),
				Longwave:  prod(StageLongwave),
			}, cfg.EnergyBalance)
			if err != nil {
				return nil, err
			}
			if flags, err := fluxes.Grid("quality_flag"); err == nil {
				p.recordFlags(CountFlags(flags))
			}
			return fluxes, nil
		}},
		{StageDailyET, func(context.Context) (*utils.Product, error) {
			return DailyEvapotranspiration(prod(StageEnergyFluxes), in.Meteo)
		}},
	}

	for _, s := range stages {
		result, err := p.runStage(ctx, s)
		if err != nil {
			return nil, err
		}
		out.Products[s.name] = result
	}
	return out, nil
}

// classify evaluates the valid mask and partitions the LAI grid once.
func (p *Pipeline) classify(in *Inputs) (*PixelClasses, error) {
	bs := newBandSet("classification")
	lai := bs.get(in.Biophysical, "lai")
	if err := bs.check(); err != nil {
		return nil, err
	}
	if in.Mask == nil {
		return nil, fmt.Errorf("classification: no mask product: %w", utils.ErrSchema)
	}

	expr, err := utils.ParseMaskExpression(p.Config.EnergyBalance.ValidMask)
	if err != nil {
		return nil, err
	}
	for _, name := range expr.Vars() {
		g, err := in.Mask.Grid(name)
		if err != nil {
			return nil, fmt.Errorf("classification: %w", err)
		}
		if !g.SameGeometry(lai) {
			return nil, fmt.Errorf("classification: mask band %s does not match lai: %w", name, utils.ErrGeometry)
		}
	}
	valid, err := expr.Evaluate(in.Mask)
	if err != nil {
		return nil, fmt.Errorf("classification: %w", err)
	}
	return ClassifyPixels(lai, valid)
}

// runStage times one stage, records it and optionally persists its output.
func (p *Pipeline) runStage(ctx context.Context, s stage) (*utils.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	log := p.Log.With().Str("stage", s.name).Logger()
	log.Info().Msg("stage started")

	start := time.Now()
	result, err := s.run(ctx)
	info := &metrics.StageInfo{Name: s.name, Duration: time.Since(start)}
	if err == nil && p.Config.OutputDir != "" {
		err = utils.WriteProduct(filepath.Join(p.Config.OutputDir, s.name), result)
	}

	if err != nil {
		info.Error = err.Error()
		p.recordStage(info)
		log.Error().Err(err).Dur("duration", info.Duration).Msg("stage failed")
		return nil, err
	}

	info.Product = result.Name
	info.Bands = result.BandNames()
	info.Pixels = result.Width * result.Height
	for _, b := range result.Bands() {
		if n := b.CountNaN(); n > info.NaNPixels {
			info.NaNPixels = n
		}
	}
	p.recordStage(info)
	log.Info().Dur("duration", info.Duration).Strs("bands", info.Bands).Int("nan_pixels", info.NaNPixels).Msg("stage finished")
	return result, nil
}

func (p *Pipeline) recordStage(info *metrics.StageInfo) {
	p.Metrics.AddStage(info)
	if p.Collector != nil {
		p.Collector.ObserveStage(info)
	}
}

func (p *Pipeline) recordSharpener(goodCells, samples, localModels int, cvThreshold, mse float64) {
	si := p.Metrics.Info.Sharpener
	si.GoodCells = goodCells
	si.TrainingSamples = samples
	si.LocalModels = localModels
	si.CVThreshold = cvThreshold
	si.GlobalMSE = mse
	if p.Collector != nil {
		p.Collector.ObserveSharpener(si)
	}
}

func (p *Pipeline) recordFlags(counts map[int]int) {
	for flag, n := range counts {
		p.Metrics.Info.QualityFlags[tseb.FlagName(flag)] = n
	}
	if p.Collector != nil {
		p.Collector.ObserveFlags(counts)
	}
}
