// Package main is the entry point for the reelfeed application.
package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/reelfeed/reelfeed/asset"
	"github.com/reelfeed/reelfeed/cmd"
	"github.com/reelfeed/reelfeed/config"
	"github.com/reelfeed/reelfeed/key"
	"github.com/reelfeed/reelfeed/log"
	"github.com/reelfeed/reelfeed/metrics"
	"github.com/reelfeed/reelfeed/where"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	if viper.GetBool(key.MetricsEnable) {
		metrics.Setup(prometheus.DefaultRegisterer)
	}

	// Sweep expired disk cache entries in the background.
	asset.CollectGarbage(
		where.Assets(),
		time.Duration(viper.GetInt(key.CacheDiskTTLDays))*24*time.Hour,
	)

	cmd.Execute()
}
