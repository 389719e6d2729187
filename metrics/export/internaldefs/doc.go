// Package internaldefs holds the metric names, help strings and bucket
// boundaries shared by the Prometheus and OTel exporters, so both expose
// identical series. Changing a definition here changes every exporter.
//
// This package performs no I/O.
package internaldefs
