// Package cmd implements the command-line interface for reelfeed.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/reelfeed/reelfeed/asset"
	"github.com/reelfeed/reelfeed/fetch"
	"github.com/reelfeed/reelfeed/icon"
	"github.com/reelfeed/reelfeed/key"
	"github.com/reelfeed/reelfeed/quality"
	"github.com/reelfeed/reelfeed/style"
	"github.com/reelfeed/reelfeed/util"
	"github.com/reelfeed/reelfeed/where"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(warmCmd)
	warmCmd.SetOut(os.Stdout)
	warmCmd.Flags().StringP("tier", "t", "", "Force a quality tier (low, medium, high) instead of probing")
}

// warmCmd fetches the given resources through the regular coordination path
// so later playback starts from a warm disk cache.
var warmCmd = &cobra.Command{
	Use:   "warm [url]...",
	Short: "Fetch media resources into the localized asset cache",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cache := asset.New(
			viper.GetInt64(key.CacheMemoryMaxBytes),
			viper.GetInt(key.CacheMemoryMaxEntries),
			where.Assets(),
		)

		monitor := quality.NewMonitor(nil)
		defer monitor.Close()

		tier, forced := parseTier(lo.Must(cmd.Flags().GetString("tier")))
		if !forced {
			// One synchronous observation instead of the periodic loop.
			monitor.Observe(quality.ProbeOnce(cmd.Context()))
			tier = monitor.Current()
		}

		coordinator := fetch.NewCoordinator(cache, monitor, fetch.Options{})

		var failed int
		for _, url := range args {
			erase := util.PrintErasable(fmt.Sprintf("%s Warming %s...", icon.Get(icon.Progress), url))
			result, err := coordinator.RequestAtTier(context.Background(), url, fetch.PriorityLow, tier)
			erase()

			if err != nil {
				failed++
				cmd.Printf("%s %s %s\n", icon.Get(icon.Fail), url, style.Faint(err.Error()))
				continue
			}

			cmd.Printf("%s %s %s\n",
				icon.Get(icon.Success),
				url,
				style.Faint(fmt.Sprintf("%s at %s", util.HumanBytes(int64(len(result.Payload))), result.Tier)),
			)
		}

		// Disk persistence is asynchronous; settle before reporting.
		cache.WaitDisk()

		if failed > 0 {
			handleErr(fmt.Errorf("%d of %s failed", failed, util.Quantify(len(args), "resource", "resources")))
		}
	},
}

func parseTier(s string) (quality.Tier, bool) {
	switch s {
	case "low":
		return quality.Low, true
	case "medium":
		return quality.Medium, true
	case "high":
		return quality.High, true
	default:
		return quality.Low, false
	}
}
