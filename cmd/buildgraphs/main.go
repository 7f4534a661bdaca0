package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/contourgraph/datasets"
	"github.com/Noofbiz/contourgraph/internal/config"
	"github.com/Noofbiz/contourgraph/viz"
	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/spf13/afero"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("buildgraphs", "Build per-frame contour graph datasets")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON configuration file", Required: true})
	split := parser.Selector("s", "split", []string{"train", "val", "both"}, &argparse.Options{Help: "Which split to process", Default: "both"})
	force := parser.Flag("", "force", &argparse.Options{Help: "Rebuild samples that already exist"})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Sequences processed concurrently (0 = from config)", Default: 0})
	plotDir := parser.String("", "plot", &argparse.Options{Help: "Render the first samples of each split as PNG into this directory"})
	plotCount := parser.Int("", "plot-count", &argparse.Options{Help: "Number of samples to render per split", Default: 4})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, *configFile)
	check(err)
	if *force {
		cfg.Dataset.Force = true
	}
	if *workers > 0 {
		cfg.Dataset.Workers = *workers
	}
	check(cfg.Validate())

	store, err := datasets.NewStore(fs, cfg.Paths.Processed, cfg.Dataset.CacheSize)
	check(err)

	var trainer datasets.Trainer
	if len(cfg.OnlineTraining.Command) != 0 {
		trainer = &datasets.CommandTrainer{
			Log:     logger,
			Command: cfg.OnlineTraining.Command,
			EnvVar:  cfg.OnlineTraining.EnvVar,
			Dir:     cfg.OnlineTraining.Dir,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var splits []datasets.Split
	switch *split {
	case "train":
		splits = []datasets.Split{datasets.Train}
	case "val":
		splits = []datasets.Split{datasets.Val}
	default:
		splits = []datasets.Split{datasets.Train, datasets.Val}
	}

	for _, s := range splits {
		opts, err := cfg.Options(fs, s)
		check(err)
		opts.Store = store
		opts.Trainer = trainer
		opts.LoadExtractor = datasets.BackboneLoader(cfg.Dataset.Layer, cfg.Backbone.Device)

		ds, err := datasets.NewGraphDataset(logger, opts)
		check(err)
		logger.Infof("%v: %v samples present before processing", ds.Name(), ds.Len())
		check(ds.Process(ctx))
		logger.Infof("%v: %v samples", ds.Name(), ds.Len())

		if *plotDir != "" {
			n := min(*plotCount, ds.Len())
			for i := 0; i < n; i++ {
				sample, err := ds.Get(i)
				check(err)
				key, err := ds.Key(i)
				check(err)
				path := filepath.Join(*plotDir, s.String(), strings.TrimSuffix(key, datasets.SampleExt)+".png")
				check(viz.PlotSample(fs, sample, path))
			}
			logger.Infof("%v: %v plots written to %v", ds.Name(), n, filepath.Join(*plotDir, s.String()))
		}
	}
}
