package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/i474232898/city-weather/internal/config"
	"github.com/i474232898/city-weather/internal/geolocation"
	"github.com/i474232898/city-weather/internal/weather"
	"github.com/i474232898/city-weather/internal/weather/proxyclient"
)

func resolveCmd() *cobra.Command {
	var (
		index  int
		lat    float64
		lon    float64
		byPos  bool
		locate bool
		toggle bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [city]",
		Short: "Resolve a city through a running proxy and print its weather view",
		Example: `  city-weather resolve Springfield --index 2
  city-weather resolve --lat 51.5072 --lon -0.1276 --fahrenheit
  city-weather resolve --locate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			byPos = cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon")
			if !byPos && !locate && len(args) == 0 {
				return errors.New("either a city name, --lat/--lon or --locate is required")
			}

			client := proxyclient.New(proxyclient.Config{
				BaseURL:    cfg.ProxyURL(),
				Timeout:    cfg.Proxy.Timeout,
				RetryCount: cfg.Proxy.RetryCount,
			}, logger)
			agg := weather.NewAggregator(client, logger, weather.WithLocation(cfg.Location()))
			sess := weather.NewSession("cli", agg, weather.NewResolver(client, logger), logger, weather.SessionOptions{
				FutureCount:  cfg.Session.FutureCount,
				GeocodeLimit: cfg.Session.GeocodeLimit,
			})
			defer sess.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var out weather.Outcome
			switch {
			case locate:
				homeLat, homeLon, ok := cfg.HomePosition()
				if !ok {
					return errors.New("--locate needs session.home to be configured")
				}
				home := weather.Coordinate{Lat: homeLat, Lon: homeLon}
				out, err = sess.Locate(ctx, geolocation.Fixed(home))
				if err != nil {
					return err
				}
			case byPos:
				out = sess.ResolveCity(ctx, weather.Coordinate{Lat: lat, Lon: lon})
			default:
				candidates, err := sess.Search(ctx, strings.Join(args, " "), 0)
				if err != nil {
					return err
				}
				if len(candidates) == 0 {
					return fmt.Errorf("no city found for %q", strings.Join(args, " "))
				}
				out, err = sess.SelectCandidate(ctx, index)
				if err != nil {
					return err
				}
			}
			if out.Current != nil {
				return out.Current
			}
			if toggle {
				if _, err := sess.ToggleUnit(ctx); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(sess.View()); err != nil {
				return err
			}
			if out.Stale() {
				fmt.Fprintln(os.Stderr, out.Err())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&index, "index", "i", 0, "candidate to select when the name is ambiguous")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().BoolVar(&locate, "locate", false, "resolve the configured home position (session.home)")
	cmd.Flags().BoolVarP(&toggle, "fahrenheit", "f", false, "display temperatures in Fahrenheit")

	return cmd
}
