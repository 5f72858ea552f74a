package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/relay-agent/internal/logic"
)

const (
	pingTimeout = 5 * time.Second

	// measurement is the InfluxDB measurement written for each transition.
	measurement = "relay_state"
)

// InfluxOptions configures an InfluxRecorder.
type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// Lines maps output index to GPIO line offset for tagging.
	Lines []int

	// Host tags every point.
	Host string

	Logger *slog.Logger
}

// InfluxRecorder writes transitions as points through the non-blocking
// write API. Writes are batched by the client library.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	lines    []int
	host     string
	logger   *slog.Logger
	now      func() time.Time
}

// NewInfluxRecorder connects to InfluxDB and checks it answers a ping.
func NewInfluxRecorder(o InfluxOptions) (*InfluxRecorder, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClientWithOptions(o.URL, o.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(50).
			SetFlushInterval(5000))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping %s: %w", o.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influxdb ping %s: server not healthy", o.URL)
	}

	writeAPI := client.WriteAPI(o.Org, o.Bucket)
	r := &InfluxRecorder{
		client:   client,
		writeAPI: writeAPI,
		lines:    o.Lines,
		host:     o.Host,
		logger:   logger.With("component", "telemetry"),
		now:      time.Now,
	}
	go r.logErrors(writeAPI.Errors())
	return r, nil
}

func (r *InfluxRecorder) logErrors(errs <-chan error) {
	for err := range errs {
		r.logger.Warn("influxdb write failed", "error", err)
	}
}

// RecordTransitions queues one point per transition. It does not block.
func (r *InfluxRecorder) RecordTransitions(ts []logic.Transition) {
	at := r.now()
	for _, t := range ts {
		r.writeAPI.WritePoint(r.point(t, at))
	}
}

func (r *InfluxRecorder) point(t logic.Transition, at time.Time) *write.Point {
	return transitionPoint(t, r.lines, r.host, at)
}

func transitionPoint(t logic.Transition, lines []int, host string, at time.Time) *write.Point {
	tags := map[string]string{
		"index": strconv.Itoa(t.Index),
	}
	if t.Index >= 0 && t.Index < len(lines) {
		tags["line"] = strconv.Itoa(lines[t.Index])
	}
	if host != "" {
		tags["host"] = host
	}
	on := 0
	if t.To == logic.StateOn {
		on = 1
	}
	return write.NewPoint(measurement, tags,
		map[string]interface{}{
			"on":    on,
			"state": string(t.To),
		},
		at)
}

// Close flushes pending points and closes the client.
func (r *InfluxRecorder) Close() error {
	r.writeAPI.Flush()
	r.client.Close()
	return nil
}
