package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/vrf/core/metrics"
	"github.com/kilianp07/vrf/infra/logger"
)

// InfluxSink writes training progress to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails, so an unreachable database
// never blocks training.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordEpoch writes one training_epoch point.
func (s *InfluxSink) RecordEpoch(rec coremetrics.EpochRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("training_epoch").
		AddTag("run_id", rec.RunID).
		AddTag("epoch", strconv.Itoa(rec.Epoch)).
		AddField("train_loss", round5(rec.TrainLoss)).
		AddField("dev_loss", round5(rec.DevLoss)).
		AddField("batches", rec.Batches).
		AddField("skipped", rec.Skipped).
		AddField("improved", rec.Improved).
		AddField("duration_s", round5(rec.Duration.Seconds())).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordEvaluation writes one evaluation point and one point per defined
// horizon bin.
func (s *InfluxSink) RecordEvaluation(rec coremetrics.EvaluationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := []*write.Point{
		write.NewPointWithMeasurement("evaluation").
			AddTag("run_id", rec.RunID).
			AddTag("epoch", strconv.Itoa(rec.Epoch)).
			AddField("loss", round5(rec.Loss)).
			AddField("mean_error", round5(rec.MeanError)).
			SetTime(rec.Time),
	}
	for _, b := range rec.Bins {
		if !b.Defined {
			continue
		}
		points = append(points, write.NewPointWithMeasurement("evaluation_bin").
			AddTag("run_id", rec.RunID).
			AddTag("epoch", strconv.Itoa(rec.Epoch)).
			AddTag("bin", strconv.FormatFloat(b.Lo, 'f', -1, 64)+"-"+strconv.FormatFloat(b.Hi, 'f', -1, 64)).
			AddField("count", b.Count).
			AddField("mean_error", round5(b.MeanError)).
			SetTime(rec.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordRun writes a run lifecycle point.
func (s *InfluxSink) RecordRun(rec coremetrics.RunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("training_run").
		AddTag("run_id", rec.RunID).
		AddTag("status", rec.Status).
		AddField("epochs", rec.Epochs).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round5(f float64) float64 {
	return math.Round(f*1e5) / 1e5
}
