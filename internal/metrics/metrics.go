// Package metrics exposes groundlink's counters to Prometheus.
//
// Nothing is double-booked: the Collector reads the dispatcher's counter
// store, the link manager and the rate monitor at scrape time and turns
// their snapshots into constant metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/muurk/groundlink/internal/capture"
	"github.com/muurk/groundlink/internal/counters"
	"github.com/muurk/groundlink/internal/dispatcher"
	"github.com/muurk/groundlink/internal/link"
	"github.com/muurk/groundlink/internal/monitor"
)

const namespace = "groundlink"

// Source is the dispatcher view the collector reads.
type Source interface {
	Snapshot() []counters.Snapshot
	Stats() dispatcher.Stats
	CaptureStats() capture.Stats
}

// LinkSource reports link state.
type LinkSource interface {
	Status() []link.Status
}

// RateSource reports the latest interval loss rates.
type RateSource interface {
	Latest() []monitor.Sample
}

var (
	receivedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "messages_received_total"),
		"Messages received per source system.",
		[]string{"sysid"}, nil,
	)
	lostDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "messages_lost_total"),
		"Messages lost per source system, from sequence gaps.",
		[]string{"sysid"}, nil,
	)
	lossRateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "loss_rate"),
		"Loss rate of the last sampling interval per source system (0-1).",
		[]string{"sysid"}, nil,
	)
	bytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "bytes_received_total"),
		"Raw bytes received from all links.",
		nil, nil,
	)
	droppedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "dropped_bytes_total"),
		"Bytes discarded by the framer as noise or malformed frames.",
		nil, nil,
	)
	decodedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "decoded_messages_total"),
		"Messages decoded from all links, including self-originated ones.",
		nil, nil,
	)
	filteredDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "filtered_messages_total"),
		"Self-originated messages excluded from accounting.",
		nil, nil,
	)
	captureActiveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "capture", "active"),
		"1 while a raw capture is recording.",
		nil, nil,
	)
	captureBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "capture", "bytes_written"),
		"Bytes written by the current or last capture session.",
		nil, nil,
	)
	captureDroppedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "capture", "chunks_dropped"),
		"Chunks dropped by the current or last capture session.",
		nil, nil,
	)
	linkUpDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "up"),
		"1 while the link is listening or connected.",
		[]string{"link", "type"}, nil,
	)
	linkSessionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "sessions"),
		"Open sessions on the link.",
		[]string{"link"}, nil,
	)
	linkBytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "bytes_received_total"),
		"Raw bytes received on the link.",
		[]string{"link"}, nil,
	)
)

// Collector implements prometheus.Collector. links and rates may be nil.
type Collector struct {
	src   Source
	links LinkSource
	rates RateSource
}

// NewCollector creates a collector.
func NewCollector(src Source, links LinkSource, rates RateSource) *Collector {
	return &Collector{src: src, links: links, rates: rates}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		receivedDesc, lostDesc, lossRateDesc,
		bytesDesc, droppedDesc, decodedDesc, filteredDesc,
		captureActiveDesc, captureBytesDesc, captureDroppedDesc,
		linkUpDesc, linkSessionsDesc, linkBytesDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.src.Snapshot() {
		id := strconv.Itoa(int(s.Source))
		ch <- prometheus.MustNewConstMetric(receivedDesc, prometheus.CounterValue, float64(s.Received), id)
		ch <- prometheus.MustNewConstMetric(lostDesc, prometheus.CounterValue, float64(s.Lost), id)
	}

	if c.rates != nil {
		for _, s := range c.rates.Latest() {
			ch <- prometheus.MustNewConstMetric(lossRateDesc, prometheus.GaugeValue, s.Rate, strconv.Itoa(int(s.Source)))
		}
	}

	st := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(bytesDesc, prometheus.CounterValue, float64(st.BytesIn))
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(st.DroppedBytes))
	ch <- prometheus.MustNewConstMetric(decodedDesc, prometheus.CounterValue, float64(st.Messages))
	ch <- prometheus.MustNewConstMetric(filteredDesc, prometheus.CounterValue, float64(st.Filtered))

	cs := c.src.CaptureStats()
	ch <- prometheus.MustNewConstMetric(captureActiveDesc, prometheus.GaugeValue, boolValue(cs.Active))
	ch <- prometheus.MustNewConstMetric(captureBytesDesc, prometheus.GaugeValue, float64(cs.BytesWritten))
	ch <- prometheus.MustNewConstMetric(captureDroppedDesc, prometheus.GaugeValue, float64(cs.ChunksDropped))

	if c.links != nil {
		for _, l := range c.links.Status() {
			ch <- prometheus.MustNewConstMetric(linkUpDesc, prometheus.GaugeValue, boolValue(l.Connected), l.Name, string(l.Type))
			ch <- prometheus.MustNewConstMetric(linkSessionsDesc, prometheus.GaugeValue, float64(l.Sessions), l.Name)
			ch <- prometheus.MustNewConstMetric(linkBytesDesc, prometheus.CounterValue, float64(l.BytesIn), l.Name)
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
