package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var buildInfoOnce sync.Once

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "elaqe_build_info",
		Help: "Always 1; labels carry the running build.",
	},
	[]string{"version", "commit", "goversion"},
)

// InitBuildInfo publishes the build labels. Safe to call more than once.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() { prometheus.MustRegister(buildInfo) })
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
