package processor

import (
	"fmt"
	"time"

	"github.com/nci/senet/dms"
	"github.com/nci/senet/solar"
	"github.com/nci/senet/utils"
	"github.com/rs/zerolog"
	"golang.org/x/net/context"
)

// SharpenInputs are the products the thermal sharpener reads.
type SharpenInputs struct {
	Reflectance *utils.Product
	Elevation   *utils.Product
	Geometry    *utils.Product
	LST         *utils.Product
	LSTQuality  *utils.Product
}

// SharpenOptions carries the per call settings of Sharpen.
type SharpenOptions struct {
	Sharpener         utils.SharpenerConfig
	ElevationBand     string
	LSTBand           string
	Acquired          time.Time
	StandardLongitude float64
	ScratchDir        string
}

// Sharpen disaggregates the coarse LST to the reflectance grid. Predictors
// are the reflectance bands, the elevation and the cosine of the solar
// incidence angle on the terrain.
func Sharpen(ctx context.Context, in SharpenInputs, opts SharpenOptions, log zerolog.Logger) (*utils.Product, *dms.Stats, error) {
	cfg := opts.Sharpener

	bs := newBandSet("sharpen")
	dem := bs.get(in.Elevation, opts.ElevationBand)
	lat := bs.fallback(in.Geometry, latitudeBands...)
	lon := bs.fallback(in.Geometry, longitudeBands...)
	if err := bs.check(); err != nil {
		return nil, nil, err
	}
	lst, err := lstGrid(in.LST, opts.LSTBand)
	if err != nil {
		return nil, nil, err
	}
	if in.LSTQuality == nil {
		return nil, nil, fmt.Errorf("sharpen: no LST quality product: %w", utils.ErrSchema)
	}
	quality, err := in.LSTQuality.FirstGrid()
	if err != nil {
		return nil, nil, fmt.Errorf("sharpen: %w", err)
	}

	scratch, err := utils.NewScratch(opts.ScratchDir, "sharpen")
	if err != nil {
		return nil, nil, err
	}
	defer scratch.Close()

	log.Info().Msg("deriving solar illumination conditions")
	if err := illumination(scratch, dem, lat, lon, opts, cfg.HorizontalScale); err != nil {
		return nil, nil, err
	}
	cosTheta, err := scratch.Grid("cos_theta")
	if err != nil {
		return nil, nil, fmt.Errorf("sharpen: %v", err)
	}

	predictors, err := predictorStack(in.Reflectance, cfg.ReflectanceBands)
	if err != nil {
		return nil, nil, err
	}
	predictors = append(predictors, dem, cosTheta)

	trainer := dms.NewBagging(dms.BaggingOptions{
		NumEstimators: cfg.NumEstimators,
		MaxSamples:    cfg.MaxSamples,
		MaxFeatures:   cfg.MaxFeatures,
		Jobs:          cfg.ParallelJobs,
		Seed:          cfg.Seed,
		Tree: dms.TreeOptions{
			MaxDepth:       cfg.MaxDepth,
			MinSamplesLeaf: cfg.MinSamplesLeaf,
			LinearLeaves:   cfg.LinearLeaves,
		},
	})
	sharpener := dms.NewSharpener(dms.Options{
		MovingWindowSize:       cfg.MovingWindowSize,
		CVHomogeneityThreshold: cfg.CVHomogeneityThreshold,
		GoodQualityFlags:       cfg.GoodQualityFlags,
		Temperature:            true,
	}, trainer, log)

	log.Info().Int("predictors", len(predictors)).Msg("sharpening")
	res, err := sharpener.Sharpen(ctx, predictors, lst, quality)
	if err != nil {
		return nil, nil, fmt.Errorf("sharpen: %w", err)
	}

	out := utils.NewProductLike("sharpenedLST", predictors[0])
	if err := out.AddBand(sharpenedLSTBand, "Sharpened Sentinel-3 LST", "K", res.Sharpened); err != nil {
		return nil, nil, err
	}
	if cfg.SaveResidual {
		if err := out.AddBand("sharpening_residual", "Residual correction of the sharpened LST", "K", res.Residual); err != nil {
			return nil, nil, err
		}
	}
	return out, &res.Stats, nil
}

// illumination spills the cosine of the solar incidence angle on the DEM
// terrain to scratch so slope and aspect can be released.
func illumination(scratch *utils.Scratch, dem, lat, lon *utils.Grid, opts SharpenOptions, horizontalScale float64) error {
	slope, aspect, err := SlopeAspect(dem, horizontalScale)
	if err != nil {
		return fmt.Errorf("sharpen: %w", err)
	}
	cosTheta, err := solar.IncidenceAngleTiltedGrid(lat, lon, aspect, slope, opts.Acquired, opts.StandardLongitude)
	if err != nil {
		return fmt.Errorf("sharpen: %w", err)
	}
	if err := scratch.PutGrid("cos_theta", cosTheta); err != nil {
		return fmt.Errorf("sharpen: %v", err)
	}
	return nil
}

// predictorStack returns the named reflectance bands, or all of them when
// names is empty.
func predictorStack(reflectance *utils.Product, names []string) ([]*utils.Grid, error) {
	if reflectance == nil {
		return nil, fmt.Errorf("sharpen: no reflectance product: %w", utils.ErrSchema)
	}
	if len(names) == 0 {
		names = reflectance.BandNames()
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("sharpen: reflectance product %s has no bands: %w", reflectance.Name, utils.ErrSchema)
	}
	var grids []*utils.Grid
	for _, name := range names {
		g, err := reflectance.Grid(name)
		if err != nil {
			return nil, fmt.Errorf("sharpen: %w", err)
		}
		grids = append(grids, g)
	}
	return grids, nil
}

// lstGrid reads the LST band, falling back to the only band of a single
// band product.
func lstGrid(p *utils.Product, band string) (*utils.Grid, error) {
	if p == nil {
		return nil, fmt.Errorf("sharpen: no LST product: %w", utils.ErrSchema)
	}
	if g, err := p.Grid(band); err == nil {
		return g, nil
	}
	if len(p.Bands()) == 1 {
		return p.FirstGrid()
	}
	return nil, fmt.Errorf("sharpen: LST product %s has no band %q: %w", p.Name, band, utils.ErrSchema)
}
