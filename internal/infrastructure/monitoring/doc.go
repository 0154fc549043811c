/*
Package monitoring collects Prometheus metrics for harness runs.

# Overview

Probe verdicts, probe durations, scenario outcomes and session lifecycle are
counted on a registry private to each Metrics value. A run persists them with
WriteTextfile so a CI host's node exporter can pick them up after the process
exits; there is no scrape endpoint.

# Usage

	metrics := monitoring.NewMetrics()

	// Record requests on the fixture server
	router.Use(monitoring.Middleware(metrics, "fixture"))

	metrics.RecordProbe("eval-blocked", "pass", elapsed)
	metrics.RecordScenario("window-spawn", "passed", elapsed)

	_ = metrics.WriteTextfile("/var/lib/node_exporter/isolation.prom")
*/
package monitoring
