package network

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of overlay_frames_dropped_total.
const (
	dropFormat      = "format"
	dropNetwork     = "network"
	dropProofOfWork = "proof_of_work"
	dropLoopback    = "loopback"
	dropHopLimit    = "hop_limit"
	dropNoRoute     = "no_route"
	dropIntegrity   = "integrity"
	dropUnarmed     = "unarmed"
	dropSignature   = "signature"
	dropUnsolicited = "unsolicited"
	dropSession     = "session"
)

// metrics holds the Prometheus collectors of a Node.
type metrics struct {
	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	framesForwarded prometheus.Counter
	framesDropped   *prometheus.CounterVec
	bytesReceived   prometheus.Counter
	bytesSent       prometheus.Counter
	helloRTT        prometheus.Histogram
	knownPeers      prometheus.Gauge
	sessionsCached  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "frames_received_total",
			Help:      "Frames addressed to this node, by message type",
		}, []string{"type"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "frames_sent_total",
			Help:      "Frames originated by this node, by message type",
		}, []string{"type"}),

		framesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "frames_forwarded_total",
			Help:      "Frames relayed on behalf of other nodes",
		}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded, by reason",
		}, []string{"reason"}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "received_bytes_total",
			Help:      "UDP payload bytes received",
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "overlay",
			Name:      "sent_bytes_total",
			Help:      "UDP payload bytes sent",
		}),

		helloRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "overlay",
			Name:      "hello_rtt_seconds",
			Help:      "Round trip time between a hello and its acknowledgement",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		knownPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "overlay",
			Name:      "known_peers",
			Help:      "Peers with at least one path in the registry",
		}),

		sessionsCached: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "overlay",
			Name:      "sessions_cached",
			Help:      "Session key pairs held in the cache",
		}),
	}
}
