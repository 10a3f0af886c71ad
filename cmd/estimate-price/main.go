package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/raine/price-estimator-bot/config"
	"github.com/raine/price-estimator-bot/internal/app"
	"github.com/raine/price-estimator-bot/internal/estimator"
	"github.com/raine/price-estimator-bot/internal/vision"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	ImageURL  string `long:"image-url" description:"Public URL of the image to estimate"`
	ImageFile string `long:"image-file" description:"Local image file, sent inline"`
	Title     string `long:"title" description:"Optional item name to refine the search"`
	Query     string `long:"query" description:"Only run the listing search for this query and print the items found"`
}

type output struct {
	estimator.Result
	Outcome estimator.Outcome `json:"outcome"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	config.LoadEnvFile()

	var opts options
	var cfg config.Config
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.AddGroup("Service", "", &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to set up flags")
	}
	if _, err := parser.Parse(); err != nil {
		if config.IsHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if opts.Query != "" {
		items := app.NewSearcher(&cfg).Search(context.Background(), opts.Query, opts.Title)
		printJSON(items)
		return
	}

	img, err := loadImage(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load image")
	}

	ctx := context.Background()
	est, err := app.NewEstimator(ctx, &cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize estimator")
	}

	res, outcome := est.EstimateDetailed(ctx, img, opts.Title)
	printJSON(output{Result: res, Outcome: outcome})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("failed to encode result")
	}
}

func loadImage(opts options) (vision.Image, error) {
	switch {
	case opts.ImageURL != "" && opts.ImageFile != "":
		return vision.Image{}, errors.New("use either --image-url or --image-file, not both")
	case opts.ImageURL != "":
		return vision.Image{URI: opts.ImageURL}, nil
	case opts.ImageFile != "":
		data, err := os.ReadFile(opts.ImageFile)
		if err != nil {
			return vision.Image{}, fmt.Errorf("failed to read image file: %w", err)
		}
		return vision.Image{Content: data, MIMEType: http.DetectContentType(data)}, nil
	default:
		return vision.Image{}, errors.New("--image-url or --image-file is required")
	}
}
