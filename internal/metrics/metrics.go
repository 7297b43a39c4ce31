package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, route, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// RequestTotal counts HTTP requests by method, route, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// OTPIssuedTotal counts codes issued by purpose (signup, reissue).
	OTPIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_issued_total",
			Help: "Total number of one-time codes issued",
		},
		[]string{"purpose"},
	)

	// LoginTotal counts login attempts by outcome (success, rejected, error).
	LoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_logins_total",
			Help: "Total number of OTP login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// EmailDeliveryTotal counts outbound emails by outcome (sent, failed, dropped).
	EmailDeliveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_delivery_total",
			Help: "Total number of OTP emails by delivery outcome",
		},
		[]string{"outcome"},
	)

	// EmailQueueDepth is the number of emails waiting for a worker.
	EmailQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "email_queue_depth",
			Help: "Number of OTP emails waiting to be sent",
		},
	)

	// ExpiredOTPsClearedTotal counts codes removed by the cleanup job.
	ExpiredOTPsClearedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_expired_cleared_total",
			Help: "Total number of expired one-time codes cleared",
		},
	)
)

var initOnce sync.Once

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestDuration,
			RequestTotal,
			OTPIssuedTotal,
			LoginTotal,
			EmailDeliveryTotal,
			EmailQueueDepth,
			ExpiredOTPsClearedTotal,
		)
	})
}

// RecordRequest records duration and count for an HTTP request.
func RecordRequest(method, route string, statusCode int, durationSeconds float64) {
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, route, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, route, status).Inc()
}

func IncOTPIssued(purpose string) {
	OTPIssuedTotal.WithLabelValues(purpose).Inc()
}

func IncLogin(outcome string) {
	LoginTotal.WithLabelValues(outcome).Inc()
}

func IncEmailDelivery(outcome string) {
	EmailDeliveryTotal.WithLabelValues(outcome).Inc()
}

func SetEmailQueueDepth(n int) {
	EmailQueueDepth.Set(float64(n))
}

func AddExpiredOTPsCleared(n int64) {
	if n > 0 {
		ExpiredOTPsClearedTotal.Add(float64(n))
	}
}
