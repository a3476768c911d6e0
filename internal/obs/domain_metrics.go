package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingSummaryTotal counts price breakdown computations by outcome (priced, empty, degraded).
	PricingSummaryTotal *prometheus.CounterVec
	// PricingStaleTotal counts breakdowns discarded because a newer request superseded them.
	PricingStaleTotal prometheus.Counter
	// ShippingRuleTotal counts which shipping rule category decided the delivery fee.
	ShippingRuleTotal *prometheus.CounterVec
	// CatalogRulesDroppedTotal counts discount rules that could not be merged onto a product.
	CatalogRulesDroppedTotal *prometheus.CounterVec
	// CartMutationTotal counts cart quantity changes by outcome.
	CartMutationTotal *prometheus.CounterVec
	// OrderSubmitTotal counts order submissions by fulfillment type and outcome.
	OrderSubmitTotal *prometheus.CounterVec
	// UpstreamLatency records backend call latency in milliseconds.
	UpstreamLatency *prometheus.HistogramVec
	// EventsTotal counts checkout events emitted per topic.
	EventsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingSummaryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_summary_total",
			Help:      "Count of price breakdown computations by outcome.",
		}, []string{"result"})
		PricingStaleTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_stale_discarded_total",
			Help:      "Number of price breakdowns discarded because a newer request was issued.",
		})
		ShippingRuleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_rule_applied_total",
			Help:      "Count of delivery fee resolutions by deciding rule category.",
		}, []string{"category"})
		CatalogRulesDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_discount_rules_dropped_total",
			Help:      "Count of discount rules dropped while merging onto the catalog.",
		}, []string{"reason"})
		CartMutationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutation_total",
			Help:      "Count of cart quantity changes by outcome.",
		}, []string{"result"})
		OrderSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_submit_total",
			Help:      "Count of order submissions by fulfillment type and outcome.",
		}, []string{"fulfillment", "result"})
		UpstreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_ms",
			Help:      "Latency of bakery backend calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"endpoint", "result"})
		EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_events_total",
			Help:      "Count of checkout events emitted by topic.",
		}, []string{"topic"})

		registerOrReuse(reg, PricingSummaryTotal, func(c prometheus.Collector) {
			if v, ok := c.(*prometheus.CounterVec); ok {
				PricingSummaryTotal = v
			}
		})
		registerOrReuse(reg, PricingStaleTotal, func(c prometheus.Collector) {
			if v, ok := c.(prometheus.Counter); ok {
				PricingStaleTotal = v
			}
		})
		registerOrReuse(reg, ShippingRuleTotal, func(c prometheus.Collector) {
			if v, ok := c.(*prometheus.CounterVec); ok {
				ShippingRuleTotal = v
			}
		})
		registerOrReuse(reg, CatalogRulesDroppedTotal, func(c prometheus.Collector) {
			if v, ok := c.(*prometheus.CounterVec); ok {
				CatalogRulesDroppedTotal = v
			}
		})
		registerOrReuse(reg, CartMutationTotal, func(c prometheus.Collector) {
			if v, ok := c.(*prometheus.CounterVec); ok {
				CartMutationTotal = v
			}
		})
		registerOrReuse(reg, OrderSubmitTotal, func(c prometheus.Collector) {
			if v, ok := c.(*prometheus.CounterVec); ok {
				OrderSubmitTotal = v
			}
		})
		registerOrReuse(reg, UpstreamLatency, func(c prometheus.Collector) {
			if v, ok := c.(*prometheus.HistogramVec); ok {
				UpstreamLatency = v
			}
		})
		registerOrReuse(reg, EventsTotal, func(c prometheus.Collector) {
			if v, ok := c.(*prometheus.CounterVec); ok {
				EventsTotal = v
			}
		})
	})
}

// The helpers below are no-ops until MustRegisterDomainMetrics has run, so
// packages can record unconditionally in tests.

// RecordPricing counts a breakdown computation outcome.
func RecordPricing(result string) {
	if PricingSummaryTotal != nil {
		PricingSummaryTotal.WithLabelValues(result).Inc()
	}
}

// RecordPricingStale counts a discarded stale breakdown.
func RecordPricingStale() {
	if PricingStaleTotal != nil {
		PricingStaleTotal.Inc()
	}
}

// RecordShippingRule counts the rule category that decided a delivery fee.
func RecordShippingRule(category string) {
	if ShippingRuleTotal != nil {
		ShippingRuleTotal.WithLabelValues(category).Inc()
	}
}

// RecordDroppedRule counts a discount rule that was not merged.
func RecordDroppedRule(reason string) {
	if CatalogRulesDroppedTotal != nil {
		CatalogRulesDroppedTotal.WithLabelValues(reason).Inc()
	}
}

// RecordCartMutation counts a cart change outcome.
func RecordCartMutation(result string) {
	if CartMutationTotal != nil {
		CartMutationTotal.WithLabelValues(result).Inc()
	}
}

// RecordOrderSubmit counts an order submission outcome.
func RecordOrderSubmit(fulfillment, result string) {
	if OrderSubmitTotal != nil {
		OrderSubmitTotal.WithLabelValues(fulfillment, result).Inc()
	}
}

// ObserveUpstream records the latency of a backend call.
func ObserveUpstream(endpoint, result string, d time.Duration) {
	if UpstreamLatency != nil {
		UpstreamLatency.WithLabelValues(endpoint, result).Observe(DurationMillis(d))
	}
}

// RecordEvent counts an emitted checkout event.
func RecordEvent(topic string) {
	if EventsTotal != nil {
		EventsTotal.WithLabelValues(topic).Inc()
	}
}
