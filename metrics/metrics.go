// Package metrics exposes registry activity as Prometheus metrics and serves
// them on a dedicated listener.
package metrics

import (
	"context"
	"math/big"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruteri/land-registry/interfaces"
)

var weiPerEther = new(big.Float).SetInt64(1e18)

// Collectors holds the registry activity metrics.
type Collectors struct {
	ParcelsMinted   prometheus.Counter
	ParcelsListed   prometheus.Gauge
	ParcelsSold     prometheus.Counter
	ParcelsRelisted prometheus.Counter
	SaleVolume      prometheus.CounterFunc
	RecordsSeen     prometheus.Counter

	seen map[interfaces.ParcelID]struct{}

	volumeMu sync.Mutex
	volume   big.Int
}

// NewCollectors registers the activity metrics on reg under namespace.
func NewCollectors(namespace string, reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	c := &Collectors{
		seen: make(map[interfaces.ParcelID]struct{}),
		ParcelsMinted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parcels_minted_total",
			Help:      "Total number of parcels minted",
		}),
		ParcelsListed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parcels_listed",
			Help:      "Number of parcels currently listed in escrow",
		}),
		ParcelsSold: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parcels_sold_total",
			Help:      "Total number of completed purchases",
		}),
		ParcelsRelisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parcels_relisted_total",
			Help:      "Total number of resales put back into escrow",
		}),
		RecordsSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_records_total",
			Help:      "Total number of journal records observed",
		}),
	}
	c.SaleVolume = factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sale_volume_ether_total",
		Help:      "Sum of purchase prices in ether. Summed exactly in wei and rounded to float64 on scrape.",
	}, c.saleVolumeEther)
	return c
}

func (c *Collectors) saleVolumeEther() float64 {
	c.volumeMu.Lock()
	defer c.volumeMu.Unlock()
	ether, _ := new(big.Float).Quo(new(big.Float).SetInt(&c.volume), weiPerEther).Float64()
	return ether
}

// Observe updates the collectors for one change record. The first listing of
// a parcel is its mint, later ones are resales.
func (c *Collectors) Observe(ev interfaces.Event) {
	c.RecordsSeen.Inc()
	switch ev.Kind {
	case interfaces.ParcelListed:
		c.ParcelsListed.Inc()
		if _, seen := c.seen[ev.ParcelID]; seen {
			c.ParcelsRelisted.Inc()
		} else {
			c.seen[ev.ParcelID] = struct{}{}
			c.ParcelsMinted.Inc()
		}
	case interfaces.ParcelBought:
		c.ParcelsListed.Dec()
		c.ParcelsSold.Inc()
		if ev.Price != nil {
			c.volumeMu.Lock()
			c.volume.Add(&c.volume, ev.Price)
			c.volumeMu.Unlock()
		}
	}
}

// Run feeds records from a journal subscription until the channel closes or
// ctx is done. It must be the only caller of Observe.
func (c *Collectors) Run(ctx context.Context, records <-chan interfaces.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-records:
			if !ok {
				return
			}
			c.Observe(ev)
		}
	}
}

// MetricsServer serves the Prometheus registry over HTTP.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// New creates a metrics server listening on addr with a fresh registry that
// also carries the Go and process collectors.
func New(namespace, addr string) (*MetricsServer, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(prometheus.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace})); err != nil {
		return nil, err
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &MetricsServer{
		registry: reg,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}, nil
}

// Registry returns the registry the server exposes.
func (m *MetricsServer) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
