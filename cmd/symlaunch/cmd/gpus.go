package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/minimario/symlaunch/internal/gpu"
)

var gpusCmd = &cobra.Command{
	Use:   "gpus",
	Short: "List GPUs visible to the launcher",
	Long:  `Query nvidia-smi and list the devices a plan's gpu indices refer to.`,
	RunE:  runGPUs,
}

func init() {
	rootCmd.AddCommand(gpusCmd)
}

func runGPUs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	disco := gpu.NewDiscoverer(log)
	if !disco.Available() {
		return fmt.Errorf("nvidia-smi not available on this host")
	}

	devices, err := disco.Devices(ctx)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"gpus": devices})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Index", "Name", "Memory (MB)", "Util %")
	for _, d := range devices {
		table.Append(
			fmt.Sprintf("%d", d.Index),
			d.Name,
			fmt.Sprintf("%.0f / %.0f", d.MemoryUsedMB, d.MemoryTotalMB),
			fmt.Sprintf("%.0f", d.UtilizationPC),
		)
	}
	return table.Render()
}
