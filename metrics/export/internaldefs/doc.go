// Package internaldefs holds the stable metric name and bucket
// definitions shared by the exporter implementations.
//
// Counter and histogram definitions live here so the Prometheus and
// OTel exporters emit identical metric names and bucket boundaries.
// Changing a definition here changes every exporter at once.
package internaldefs
