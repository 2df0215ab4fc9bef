// Package cmd implements the command-line interface for reelfeed.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/reelfeed/reelfeed/color"
	"github.com/reelfeed/reelfeed/icon"
	"github.com/reelfeed/reelfeed/key"
	"github.com/reelfeed/reelfeed/quality"
	"github.com/reelfeed/reelfeed/style"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.SetOut(os.Stdout)
	probeCmd.Flags().IntP("count", "n", 1, "Number of probes to run")
}

// probeCmd performs one-shot network path observations and reports the
// resulting quality classification.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the network path and report the quality tier classification",
	Long:  "Probe the configured endpoint and report reachability, round-trip time and the quality tier media fetches would currently use.",
	Run: func(cmd *cobra.Command, args []string) {
		count := lo.Must(cmd.Flags().GetInt("count"))

		for i := 0; i < count; i++ {
			sample := quality.ProbeOnce(context.Background())
			tier := quality.Classify(sample)

			status := icon.Get(icon.Success)
			if !sample.Reachable {
				status = icon.Get(icon.Fail)
			}

			cmd.Printf("%s %s %s\n",
				status,
				style.Fg(color.Purple)(viper.GetString(key.NetworkProbeURL)),
				style.Faint(fmt.Sprintf("rtt=%s", sample.RTT.Round(time.Millisecond))),
			)
			cmd.Printf("  %s %s %s\n",
				style.Faint("tier:"),
				style.Bold(tier.String()),
				style.Faint(fmt.Sprintf("(max %d kbps, %dp)", tier.MaxBitrate()/1000, tier.MaxHeight())),
			)

			if i < count-1 {
				time.Sleep(time.Second)
			}
		}
	},
}
