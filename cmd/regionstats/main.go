package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"regionstats/pkg/config"
	"regionstats/pkg/measure"
	"regionstats/pkg/regions"
	"regionstats/pkg/report"
	"regionstats/pkg/volume"
	"regionstats/pkg/warp"
)

func main() {
	// Parse command line arguments
	inputGlob := flag.String("input", "", "Glob matching the 2D intensity planes, e.g. 'planes/img_*.tiff'")
	alignmentPath := flag.String("alignment", "", "JSON alignment file of moving/reference landmark points")
	segmentationPath := flag.String("segmentation", "", "Reference segmentation volume (.npy, .nii or .nii.gz)")
	regionsPath := flag.String("regions", "", "CSV table mapping segmentation ids to the region hierarchy")
	outputPath := flag.String("output", "", "Output CSV report filename")
	level := flag.Int("level", 7, "Region hierarchy granularity from 1 (coarsest) to 7 (finest)")
	workers := flag.Int("workers", runtime.NumCPU(), "Number of planes to measure concurrently (default: all cores)")
	configPath := flag.String("config", "", "Optional YAML configuration file")
	dumpTotals := flag.String("dump-totals", "", "Optional path prefix for dumping raw per-label totals as NPY")
	xyzOrder := flag.Bool("xyz", false, "Alignment points are stored x,y,z instead of z,y,x")
	quiet := flag.Bool("quiet", false, "Suppress the progress bar and step banners")
	flag.Parse()

	// Validate inputs
	if *inputGlob == "" || *alignmentPath == "" || *segmentationPath == "" ||
		*regionsPath == "" || *outputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration, then let explicitly set flags win over it
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "level":
			cfg.Processing.Level = *level
		case "workers":
			cfg.Processing.Workers = *workers
		case "xyz":
			cfg.Alignment.XYZOrder = *xyzOrder
		}
	})
	if *quiet {
		cfg.Output.Progress = false
		cfg.Output.Verbose = false
	}
	if cfg.Processing.Level < 1 || cfg.Processing.Level > regions.Levels {
		log.Fatalf("Invalid level %d: must be between 1 and %d", cfg.Processing.Level, regions.Levels)
	}

	if cfg.Output.Verbose {
		fmt.Println("================================")
		fmt.Println("PER-REGION INTENSITY MEASUREMENT OF 2D IMAGE PLANES IN REFERENCE ATLAS SPACE")
		fmt.Println("Warps every pixel through a landmark alignment and bins it against a segmentation")
		fmt.Println("================================")
	}

	// List the planes in ascending numeric filename order
	planes, err := measure.ExpandGlob(*inputGlob)
	if err != nil {
		log.Fatalf("Failed to list input planes: %v", err)
	}
	if cfg.Output.Verbose {
		fmt.Printf("Found %d input planes\n", len(planes))
	}

	// Fit the warper on the alignment landmarks
	alignment, err := warp.LoadAlignment(*alignmentPath, cfg.Alignment.XYZOrder)
	if err != nil {
		log.Fatalf("Failed to load alignment: %v", err)
	}
	warper, err := warp.NewWarper(alignment)
	if err != nil {
		log.Fatalf("Failed to fit warper: %v", err)
	}
	if cfg.Output.Verbose {
		residuals := warper.Diagnose(alignment)
		fmt.Printf("Fitted warper on %d landmarks (residual mean %.4f, max %.4f)\n",
			len(alignment.Moving), residuals.Mean, residuals.Max)
	}

	// Load the shared segmentation volume
	segmentation, err := volume.Open(*segmentationPath)
	if err != nil {
		log.Fatalf("Failed to load segmentation: %v", err)
	}
	if cfg.Output.Verbose {
		view, err := segmentation.Read()
		if err != nil {
			log.Fatalf("Failed to read segmentation: %v", err)
		}
		depth, height, width := view.Shape()
		fmt.Printf("Segmentation volume: %dx%dx%d, max label %d\n", depth, height, width, view.MaxLabel())
	}

	// Load the region hierarchy before the long measurement so a bad
	// table fails fast
	table, err := regions.LoadTable(*regionsPath)
	if err != nil {
		log.Fatalf("Failed to load region table: %v", err)
	}
	if cfg.Output.Verbose {
		fmt.Printf("Loaded region table with %d regions\n", table.Len())
	}

	// Run the measurement pipeline
	params := &measure.Params{
		Planes:       planes,
		Segmentation: segmentation,
		Approximate: func(zs, ys, xs []float64) (measure.Evaluator, error) {
			return warper.Approximate(zs, ys, xs)
		},
		Workers:     cfg.Processing.Workers,
		GridSamples: cfg.Processing.GridSamples,
		Progress:    cfg.Output.Progress,
	}
	measurer := measure.NewMeasurer(params)

	if cfg.Output.Verbose {
		fmt.Printf("Starting measurement with %d workers...\n", cfg.Processing.Workers)
	}
	startTime := time.Now()
	totals, err := measurer.Run()
	if err != nil {
		log.Fatalf("Measurement failed: %v", err)
	}
	processingTime := time.Since(startTime)

	// Roll the per-label totals up to the requested granularity
	rows, err := regions.Rollup(totals.Counts, totals.Sums, table, cfg.Processing.Level)
	if err != nil {
		log.Fatalf("Failed to roll up totals: %v", err)
	}

	if err := report.Write(*outputPath, rows, cfg.Processing.Level); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	if *dumpTotals != "" {
		countsPath := *dumpTotals + "_counts.npy"
		sumsPath := *dumpTotals + "_sums.npy"
		if err := report.WriteTotalsNpy(countsPath, sumsPath, totals); err != nil {
			log.Fatalf("Failed to dump raw totals: %v", err)
		}
		if cfg.Output.Verbose {
			fmt.Printf("Raw totals saved to: %s and %s\n", countsPath, sumsPath)
		}
	}

	var pixels int64
	for _, c := range totals.Counts {
		pixels += c
	}
	if cfg.Output.Verbose {
		fmt.Printf("\nMeasurement completed successfully in %.2f seconds!\n", processingTime.Seconds())
		fmt.Printf("Measured %d pixels inside the reference volume across %d planes\n", pixels, totals.Planes)
		fmt.Printf("Report saved to: %s (%d rows at level %d)\n", *outputPath, len(rows), cfg.Processing.Level)
	}
}
