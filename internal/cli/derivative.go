package cli

import (
	"fmt"

	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	"github.com/benzinger-icl/karidf-scripts/pkg/catalog"
	archivehttp "github.com/benzinger-icl/karidf-scripts/pkg/http"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/benzinger-icl/karidf-scripts/pkg/orchestrator"
	"github.com/benzinger-icl/karidf-scripts/pkg/selection"
	"github.com/spf13/cobra"
)

// DownloadFlagPrefix prefixes every file selection flag, e.g. --download-nii.
const DownloadFlagPrefix = "download-"

// NewFreeSurferCmd creates the freesurfer command.
func NewFreeSurferCmd() *cobra.Command {
	return newDerivativeCmd(model.KindFreeSurfer, selection.FreeSurferFlags, catalog.NewFreeSurferCatalog,
		"Download FreeSurfer packages",
		`Download the FreeSurfer assessors given with -c or -i into
DESTINATION/<assessor ID>/<resource>. Without --download-* flags every file of the
SNAPSHOTS, LOG and DATA resources is downloaded.`)
}

// NewPUPCmd creates the pup command.
func NewPUPCmd() *cobra.Command {
	return newDerivativeCmd(model.KindPUP, selection.PUPFlags, catalog.NewPUPCatalog,
		"Download PUP packages",
		`Download the PUP assessors given with -c or -i into
DESTINATION/<session label>/<assessor ID>/<resource>. Without --download-* flags
every file of the SNAPSHOTS, LOG and DATA resources is downloaded.`)
}

type derivativeCatalogFunc func(client *archivehttp.HTTPClient, resources []string) *catalog.DerivativeCatalog

func newDerivativeCmd(kind model.Kind, known []string, newCatalog derivativeCatalogFunc, short, long string) *cobra.Command {
	var flags retrieveFlags
	enabled := make(map[string]*bool, len(known))

	cmd := &cobra.Command{
		Use:   string(kind) + " [SITE] [DESTINATION]",
		Short: short,
		Long:  long,
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := selection.NewFlagSet(kind, selectedFlags(known, enabled))
			if err != nil {
				return fmt.Errorf("invalid selection: %w", err)
			}
			resources := set.Resources()
			logger.Debug("Derivative selection", logger.Fields{"kind": kind, "flags": set.Flags(), "resources": resources})

			return runRetrieval(cmd.Context(), &retrieval{
				kind:     kind,
				flags:    &flags,
				args:     args,
				selector: set,
				newCatalog: func(client *archivehttp.HTTPClient) orchestrator.Catalog {
					return newCatalog(client, resources)
				},
			})
		},
	}

	flags.register(cmd)
	for _, f := range known {
		enabled[f] = cmd.Flags().Bool(DownloadFlagPrefix+f, false, fmt.Sprintf("download %s files", f))
	}

	return cmd
}

// selectedFlags returns the flags switched on, in table order.
func selectedFlags(known []string, enabled map[string]*bool) []string {
	var out []string
	for _, f := range known {
		if v := enabled[f]; v != nil && *v {
			out = append(out, f)
		}
	}
	return out
}
