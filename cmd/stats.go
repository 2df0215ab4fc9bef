// Package cmd implements the command-line interface for reelfeed.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/reelfeed/reelfeed/color"
	"github.com/reelfeed/reelfeed/filesystem"
	"github.com/reelfeed/reelfeed/history"
	"github.com/reelfeed/reelfeed/key"
	"github.com/reelfeed/reelfeed/style"
	"github.com/reelfeed/reelfeed/util"
	"github.com/reelfeed/reelfeed/where"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.SetOut(os.Stdout)
}

// statsCmd reports occupancy of the persistent asset cache and the watch
// history store.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display asset cache and history occupancy",
	Run: func(cmd *cobra.Command, args []string) {
		header := style.New().Bold(true).Foreground(color.HiPurple).Render

		var (
			diskEntries int
			diskBytes   int64
		)
		err := afero.Walk(filesystem.API(), where.Assets(), func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			diskEntries++
			diskBytes += info.Size()
			return nil
		})
		handleErr(err)

		cmd.Printf("%s\n", header("Disk cache"))
		cmd.Printf("  %s %s\n", style.Faint("Path:"), where.Assets())
		cmd.Printf("  %s %s in %s\n",
			style.Faint("Size:"),
			style.Bold(util.HumanBytes(diskBytes)),
			util.Quantify(diskEntries, "entry", "entries"),
		)
		cmd.Printf("  %s %s days\n", style.Faint("TTL:"), viper.GetString(key.CacheDiskTTLDays))
		cmd.Println()

		cmd.Printf("%s\n", header("Memory budget"))
		cmd.Printf("  %s %s, %s entries\n",
			style.Faint("Limits:"),
			util.HumanBytes(viper.GetInt64(key.CacheMemoryMaxBytes)),
			viper.GetString(key.CacheMemoryMaxEntries),
		)
		cmd.Println()

		saved, err := history.Get()
		handleErr(err)

		cmd.Printf("%s\n", header("History"))
		cmd.Printf("  %s %s\n", style.Faint("Path:"), filepath.Dir(where.History()))
		cmd.Printf("  %s %s\n", style.Faint("Records:"), util.Quantify(len(saved), "item", "items"))
	},
}
