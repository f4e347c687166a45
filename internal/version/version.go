// Package version exposes the build version and the producer URI stamped
// into every lineage event.
package version

// Version is overridden at build time with
// -ldflags "-X github.com/correlator-io/correlator-airflow/internal/version.Version=v1.2.3".
var Version = "0.0.0+dev"

// ProducerBase is the URI prefix identifying this tool as an event producer.
const ProducerBase = "https://github.com/correlator-io/correlator-airflow"

// Producer returns the producer URI for the running build.
func Producer() string {
	return ProducerBase + "/" + Version
}
