package commands

import (
	"fmt"
	"math"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/strataproc/strata/pkg/raster"
	_ "github.com/strataproc/strata/pkg/raster/chunked"
	_ "github.com/strataproc/strata/pkg/raster/flat"
)

var infoCmd = &cobra.Command{
	Use:   "info PATH...",
	Short: "Show raster metadata",
	Long: `Show the geometry, dtype, nodata value, and native chunk shape of
one or more rasters. All paths must share a supported extension.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Path", "Rows", "Cols", "DType", "Nodata", "Chunk"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, path := range args {
		ds, err := raster.Open(path)
		if err != nil {
			return err
		}
		info := ds.Info()
		_ = ds.Close()

		nodata := "NaN"
		if !math.IsNaN(info.Nodata) {
			nodata = strconv.FormatFloat(info.Nodata, 'g', -1, 64)
		}
		table.Append([]string{
			path,
			strconv.Itoa(info.Rows),
			strconv.Itoa(info.Cols),
			info.DType.String(),
			nodata,
			fmt.Sprintf("%dx%d", info.ChunkRows, info.ChunkCols),
		})
	}

	table.Render()
	return nil
}
