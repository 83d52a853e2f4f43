// Package metrics holds the Prometheus collectors the bot updates while it
// runs:
//
//   - slottrader_slots_total{result}            fired | forfeited | skipped
//   - slottrader_orders_total{side,status}      order submissions by broker verdict
//   - slottrader_trades_total{outcome}          closed trades by TP | SL | WIN | LOSS | Closed
//   - slottrader_intraday_pnl                   realized P/L for the server day
//   - slottrader_lot_size                       last computed volume
//   - slottrader_reanchors_total{result}        modified | aligned | missing | failed
//   - slottrader_reports_total{kind,result}     sent | duplicate | failed
//   - slottrader_active_watchers                in-flight trade watchers
//   - slottrader_broker_errors_total{op}        failed broker calls
//
// Collectors are registered with the default registry in init() and are
// served at /metrics by the run command.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	slots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slottrader_slots_total",
			Help: "Schedule slots by result",
		},
		[]string{"result"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slottrader_orders_total",
			Help: "Market orders submitted",
		},
		[]string{"side", "status"},
	)

	trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slottrader_trades_total",
			Help: "Closed trades by outcome",
		},
		[]string{"outcome"},
	)

	intradayPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slottrader_intraday_pnl",
			Help: "Realized profit/loss for the current server day",
		},
	)

	lotSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slottrader_lot_size",
			Help: "Most recently computed trade volume in lots",
		},
	)

	reanchors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slottrader_reanchors_total",
			Help: "Stop-loss/take-profit re-anchor attempts by result",
		},
		[]string{"result"},
	)

	reports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slottrader_reports_total",
			Help: "Report emissions by kind and result",
		},
		[]string{"kind", "result"},
	)

	activeWatchers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slottrader_active_watchers",
			Help: "Trade watchers currently running",
		},
	)

	brokerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slottrader_broker_errors_total",
			Help: "Failed broker calls by operation",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(slots, orders, trades)
	prometheus.MustRegister(intradayPnL, lotSize)
	prometheus.MustRegister(reanchors, reports)
	prometheus.MustRegister(activeWatchers, brokerErrors)
}

func SlotFired()     { slots.WithLabelValues("fired").Inc() }
func SlotForfeited() { slots.WithLabelValues("forfeited").Inc() }
func SlotSkipped()   { slots.WithLabelValues("skipped").Inc() }

func Order(side, status string) { orders.WithLabelValues(side, status).Inc() }
func Trade(outcome string)      { trades.WithLabelValues(outcome).Inc() }

func SetIntradayPnL(v float64) { intradayPnL.Set(v) }
func SetLotSize(v float64)     { lotSize.Set(v) }

func Reanchor(result string)     { reanchors.WithLabelValues(result).Inc() }
func Report(kind, result string) { reports.WithLabelValues(kind, result).Inc() }
func WatcherStarted()            { activeWatchers.Inc() }
func WatcherDone()               { activeWatchers.Dec() }
func BrokerError(op string)      { brokerErrors.WithLabelValues(op).Inc() }
