package main

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-resolver/internal/model"
)

var (
	resolveAddress      string
	resolveJurisdiction string
	resolveState        string
	resolveLat          float64
	resolveLng          float64
	resolveTimeout      time.Duration
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve ownership for one property",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := resolveInput(cmd)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), "resolve", false)
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Orchestrator.Resolve(cmd.Context(), in)
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

// resolveInput builds the lookup from flags. Coordinates count only when
// both flags were set.
func resolveInput(cmd *cobra.Command) (model.LookupInput, error) {
	in := model.LookupInput{
		Address:      strings.TrimSpace(resolveAddress),
		Jurisdiction: resolveJurisdiction,
		State:        resolveState,
		Timeout:      resolveTimeout,
	}
	latSet := cmd.Flags().Changed("lat")
	lngSet := cmd.Flags().Changed("lng")
	if latSet != lngSet {
		return in, eris.New("--lat and --lng must be given together")
	}
	if latSet {
		lat, lng := resolveLat, resolveLng
		in.Lat, in.Lng = &lat, &lng
	}
	if in.Address == "" && !in.HasPoint() {
		return in, eris.New("--address or --lat/--lng is required")
	}
	return in, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

func init() {
	resolveCmd.Flags().StringVar(&resolveAddress, "address", "", "property address")
	resolveCmd.Flags().StringVar(&resolveJurisdiction, "jurisdiction", "", "county hint, e.g. \"St. Lucie County\"")
	resolveCmd.Flags().StringVar(&resolveState, "state", "", "state hint")
	resolveCmd.Flags().Float64Var(&resolveLat, "lat", 0, "latitude")
	resolveCmd.Flags().Float64Var(&resolveLng, "lng", 0, "longitude")
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 0, "overall deadline (0 uses adapter defaults)")
	rootCmd.AddCommand(resolveCmd)
}
