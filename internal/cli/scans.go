package cli

import (
	"fmt"

	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	"github.com/benzinger-icl/karidf-scripts/pkg/catalog"
	archivehttp "github.com/benzinger-icl/karidf-scripts/pkg/http"
	"github.com/benzinger-icl/karidf-scripts/pkg/input"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/benzinger-icl/karidf-scripts/pkg/orchestrator"
	"github.com/benzinger-icl/karidf-scripts/pkg/selection"
	"github.com/spf13/cobra"
)

// NewScansCmd creates the scans command.
func NewScansCmd() *cobra.Command {
	var (
		flags     retrieveFlags
		typesFile string
	)

	cmd := &cobra.Command{
		Use:   "scans [SITE] [DESTINATION]",
		Short: "Download raw scans of imaging sessions",
		Long: `Download the scans of every experiment ID given with -c or -i into
DESTINATION/<session label>/<scan type>. With -t only scans whose type is listed
in the file are downloaded; type names are matched exactly.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := loadTypes(typesFile)
			if err != nil {
				return err
			}
			return runRetrieval(cmd.Context(), &retrieval{
				kind:     model.KindScans,
				flags:    &flags,
				args:     args,
				selector: selection.NewTypeSet(types),
				newCatalog: func(client *archivehttp.HTTPClient) orchestrator.Catalog {
					return catalog.NewScanCatalog(client)
				},
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&typesFile, "types", "t", "", "CSV file with one scan type per row, no header (default: all types)")

	return cmd
}

func loadTypes(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	types, err := input.ReadSelection(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan types: %w", err)
	}
	logger.Debug("Scan type selection loaded", logger.Fields{"path": path, "types": len(types)})
	return types, nil
}
