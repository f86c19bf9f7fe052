package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Set at link time: -ldflags "-X qazna.org/authservice/internal/obs.Version=..."
var (
	Version = "dev"
	Commit  = "none"
)

var (
	buildInfoOnce sync.Once

	// buildInfo: gauge со статич. значением 1 и метками версии/коммита.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "authservice_build_info",
			Help: "Auth service build information.",
		},
		[]string{"version", "commit"},
	)
)

// InitBuildInfo registers build_info once and publishes the current version.
func InitBuildInfo() {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(Version, Commit).Set(1)
}
