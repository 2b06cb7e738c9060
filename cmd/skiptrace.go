package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/model"
)

var skipTraceInput model.PersonInput

var skipTraceCmd = &cobra.Command{
	Use:   "skiptrace",
	Short: "Look up contact details for a property owner",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if strings.TrimSpace(skipTraceInput.Address) == "" {
			return eris.New("--address is required")
		}
		if err := cfg.Validate("skiptrace"); err != nil {
			return err
		}

		client := initSkipTrace()
		res, err := client.LookupPerson(cmd.Context(), skipTraceInput)
		if err != nil {
			return eris.Wrap(err, "skip trace")
		}
		if res == nil {
			zap.L().Info("skip trace returned no match", zap.Bool("configured", client.Configured()))
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	f := skipTraceCmd.Flags()
	f.StringVar(&skipTraceInput.FirstName, "first", "", "owner first name")
	f.StringVar(&skipTraceInput.LastName, "last", "", "owner last name")
	f.StringVar(&skipTraceInput.Address, "address", "", "street address")
	f.StringVar(&skipTraceInput.City, "city", "", "city")
	f.StringVar(&skipTraceInput.State, "state", "", "state")
	f.StringVar(&skipTraceInput.Zip, "zip", "", "zip code")
	rootCmd.AddCommand(skipTraceCmd)
}
