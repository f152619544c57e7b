// Package scheduler runs periodic housekeeping jobs (retention sweeps, timer resyncs) on
// robfig/cron. Jobs never overlap themselves and each run is bounded by a timeout.
package scheduler
