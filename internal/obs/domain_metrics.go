package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DiscountValidationsTotal counts discount code validations by outcome.
	DiscountValidationsTotal *prometheus.CounterVec
	// DiscountRedemptionsTotal counts redemption attempts by outcome.
	DiscountRedemptionsTotal *prometheus.CounterVec
	// CartMutationsTotal counts cart mutations by operation.
	CartMutationsTotal *prometheus.CounterVec
	// PriceQuotesTotal counts pricing quotes by currency and region fallback.
	PriceQuotesTotal *prometheus.CounterVec
	// OrdersCreatedTotal counts orders by currency.
	OrdersCreatedTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment intent creation outcomes.
	PaymentIntentTotal *prometheus.CounterVec
	// EmailDeliveriesTotal counts transactional email outcomes.
	EmailDeliveriesTotal *prometheus.CounterVec
	// RateLimitRejectedTotal counts requests rejected by a limiter.
	RateLimitRejectedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		counter := func(target **prometheus.CounterVec, name, help string, labels ...string) {
			*target = prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      name,
				Help:      help,
			}, labels)
			mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*target = v
				}
			})
		}
		counter(&DiscountValidationsTotal, "discount_validations_total", "Count of discount code validations by outcome.", "result")
		counter(&DiscountRedemptionsTotal, "discount_redemptions_total", "Count of discount redemption attempts by outcome.", "result")
		counter(&CartMutationsTotal, "cart_mutations_total", "Count of cart mutations by operation.", "op")
		counter(&PriceQuotesTotal, "price_quotes_total", "Count of price quotes by currency.", "currency", "region_defaulted")
		counter(&OrdersCreatedTotal, "orders_created_total", "Count of orders created by currency.", "currency")
		counter(&PaymentIntentTotal, "payment_intent_total", "Count of payment intent processing outcomes.", "provider", "result")
		counter(&EmailDeliveriesTotal, "email_deliveries_total", "Count of transactional email outcomes.", "result")
		counter(&RateLimitRejectedTotal, "rate_limit_rejected_total", "Requests rejected by rate limiting.", "scope")
	})
}

// Inc increments vec with labels, ignoring collectors that were never registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
