package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is a snapshot of database pool usage.
type PoolStats struct {
	Total    int32
	Idle     int32
	Acquired int32
	Max      int32
}

// DBPoolStatFunc returns database pool statistics without importing pgxpool.
type DBPoolStatFunc func() PoolStats

// dbPoolCollector reads pool stats on every scrape.
type dbPoolCollector struct {
	statFunc DBPoolStatFunc
	descs    [4]*prometheus.Desc
}

// NewDBPoolCollector creates a collector that exposes DB pool gauges.
func NewDBPoolCollector(statFunc DBPoolStatFunc) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("cloudtally_db_pool_"+name, help, nil, nil)
	}
	return &dbPoolCollector{
		statFunc: statFunc,
		descs: [4]*prometheus.Desc{
			desc("total_conns", "Total number of connections in the DB pool."),
			desc("idle_conns", "Number of idle connections in the DB pool."),
			desc("acquired_conns", "Number of acquired connections in the DB pool."),
			desc("max_conns", "Maximum size of the DB pool."),
		},
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.statFunc()
	values := [4]int32{s.Total, s.Idle, s.Acquired, s.Max}
	for i, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(values[i]))
	}
}
