package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/boutiqueload/internal/loadtest"
	"github.com/FairForge/boutiqueload/internal/metrics"
	"github.com/FairForge/boutiqueload/internal/probe"
	"github.com/FairForge/boutiqueload/internal/threshold"
)

func sampleSummary(t *testing.T) *Summary {
	t.Helper()
	reg := metrics.NewRegistry()
	reg.Counter(metrics.HTTPReqs).Add(200)
	reg.Counter(metrics.DataReceived).Add(2048)
	for i := 1; i <= 200; i++ {
		reg.Trend(metrics.HTTPReqDuration).Add(float64(i * 10))
	}
	errs := reg.Rate(metrics.Errors)
	for i := 0; i < 200; i++ {
		errs.Add(i < 20)
	}

	ths, err := threshold.ParseSet(map[string][]string{
		"http_req_duration": {"p(95)<3000"},
		"errors":            {"rate<0.05"},
	})
	require.NoError(t, err)

	info := &loadtest.RunInfo{
		Name:       "load",
		StartTime:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		EndTime:    time.Date(2026, 1, 2, 3, 5, 45, 0, time.UTC),
		Duration:   100 * time.Second,
		Iterations: 50,
		MaxVUs:     100,
	}
	checks := []probe.CheckCount{
		{Name: "frontend homepage loads", Passes: 50},
		{Name: "frontend product page loads", Passes: 45, Fails: 5},
	}
	run := Run{ID: "run-1", Scenario: "load", Target: "http://shop", Info: info}
	return Build(run, reg, checks, threshold.Evaluate(ths, reg, info.Duration))
}

func TestBuild(t *testing.T) {
	s := sampleSummary(t)

	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, int64(50), s.Iterations)
	assert.Equal(t, 100, s.MaxVUs)
	assert.False(t, s.Passed)
	assert.Equal(t, ExitThresholdsFailed, s.ExitCode())

	require.Len(t, s.Thresholds, 2)
	assert.Equal(t, "errors", s.Thresholds[0].Metric)
	assert.False(t, s.Thresholds[0].Passed)
	assert.InDelta(t, 0.1, s.Thresholds[0].Actual, 1e-9)
	assert.True(t, s.Thresholds[1].Passed)

	failed := s.FailedThresholds()
	require.Len(t, failed, 1)
	assert.Equal(t, "rate<0.05", failed[0].Expression)

	names := make([]string, 0, len(s.Metrics))
	for _, m := range s.Metrics {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"data_received", "errors", "http_req_duration", "http_reqs"}, names)
}

func TestBuild_NoThresholdsPasses(t *testing.T) {
	s := Build(Run{Scenario: "smoke"}, metrics.NewRegistry(), nil, nil)
	assert.True(t, s.Passed)
	assert.Equal(t, 0, s.ExitCode())
	assert.Empty(t, s.Metrics)
}

func TestSummaryRecord(t *testing.T) {
	s := sampleSummary(t)
	rec, err := s.Record()
	require.NoError(t, err)

	assert.Equal(t, "run-1", rec.ID)
	assert.Equal(t, "load", rec.Scenario)
	assert.Equal(t, int64(50), rec.Iterations)
	assert.Equal(t, s.Passed, rec.Passed)
	assert.Equal(t, s.StartTime, rec.StartedAt)

	var decoded Summary
	require.NoError(t, json.Unmarshal(rec.Summary, &decoded))
	assert.Equal(t, s.RunID, decoded.RunID)
	assert.Len(t, decoded.Thresholds, len(s.Thresholds))
}

func TestWriteText(t *testing.T) {
	s := sampleSummary(t)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, s, Options{Indent: " "}))
	out := buf.String()

	assert.Contains(t, out, "scenario: load")
	assert.Contains(t, out, "run id:   run-1")
	assert.Contains(t, out, "✓ frontend homepage loads")
	assert.Contains(t, out, "✗ frontend product page loads")
	assert.Contains(t, out, "90% passed (✓ 45 / ✗ 5)")
	assert.Contains(t, out, "errors")
	assert.Contains(t, out, "10.00%")
	assert.Contains(t, out, "p(95)=")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "rate<0.05")
	assert.Contains(t, out, "FAILED (1 of 2 thresholds crossed)")
	assert.NotContains(t, out, "\x1b[", "colors disabled")
}

func TestWriteText_Colors(t *testing.T) {
	s := sampleSummary(t)
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, s, DefaultOptions()))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "250.00µs", formatMillis(0.25))
	assert.Equal(t, "12.50ms", formatMillis(12.5))
	assert.Equal(t, "2.50s", formatMillis(2500))
	assert.Equal(t, "2m0s", formatMillis(120000))
	assert.Equal(t, "5.00%", formatPercent(0.05))
	assert.Equal(t, "3", formatFloat(3))
	assert.Equal(t, "3.14", formatFloat(3.14159))
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 MB", formatBytes(1.5*1024*1024))
}

func decodeSummary(t *testing.T, r io.Reader) *Summary {
	t.Helper()
	var s Summary
	require.NoError(t, json.NewDecoder(r).Decode(&s))
	return &s
}

func TestFileSink(t *testing.T) {
	s := sampleSummary(t)
	dir := t.TempDir()

	t.Run("plain json", func(t *testing.T) {
		path := filepath.Join(dir, "out", "summary.json")
		sink, err := ParseSink(context.Background(), "file:"+path, SinkOptions{})
		require.NoError(t, err)
		assert.Equal(t, "file:"+path, sink.String())
		require.NoError(t, sink.Write(context.Background(), s))

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		got := decodeSummary(t, f)
		assert.Equal(t, "run-1", got.RunID)
		assert.Len(t, got.Thresholds, 2)
	})

	t.Run("gzip", func(t *testing.T) {
		path := filepath.Join(dir, "summary.json.gz")
		sink, err := ParseSink(context.Background(), "file:"+path, SinkOptions{})
		require.NoError(t, err)
		require.NoError(t, sink.Write(context.Background(), s))

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		zr, err := gzip.NewReader(f)
		require.NoError(t, err)
		got := decodeSummary(t, zr)
		assert.Equal(t, "load", got.Scenario)
	})
}

func TestStdoutSinks(t *testing.T) {
	s := sampleSummary(t)

	var text bytes.Buffer
	sink, err := ParseSink(context.Background(), "stdout", SinkOptions{Stdout: &text})
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), s))
	assert.Contains(t, text.String(), "thresholds:")

	var js bytes.Buffer
	sink, err = ParseSink(context.Background(), "json", SinkOptions{Stdout: &js})
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), s))
	assert.Equal(t, "run-1", decodeSummary(t, &js).RunID)
}

func TestParseSink_Errors(t *testing.T) {
	for _, spec := range []string{"file:", "s3://", "s3://bucket", "kafka://topic"} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseSink(context.Background(), spec, SinkOptions{})
			assert.Error(t, err)
		})
	}
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	s := sampleSummary(t)

	t.Run("prefix key gets run id", func(t *testing.T) {
		fake := &fakePutter{}
		sink := NewS3Sink(fake, "reports", "boutique/", nil)
		require.NoError(t, sink.Write(context.Background(), s))

		assert.Equal(t, "reports", aws.ToString(fake.input.Bucket))
		assert.Equal(t, "boutique/run-1.json", aws.ToString(fake.input.Key))
		assert.Nil(t, fake.input.ContentEncoding)
		assert.Equal(t, "run-1", decodeSummary(t, bytes.NewReader(fake.body)).RunID)
	})

	t.Run("gzip key", func(t *testing.T) {
		fake := &fakePutter{}
		sink := NewS3Sink(fake, "reports", "latest.json.gz", nil)
		require.NoError(t, sink.Write(context.Background(), s))

		assert.Equal(t, "gzip", aws.ToString(fake.input.ContentEncoding))
		zr, err := gzip.NewReader(bytes.NewReader(fake.body))
		require.NoError(t, err)
		assert.Equal(t, "load", decodeSummary(t, zr).Scenario)
	})

	t.Run("upload error", func(t *testing.T) {
		sink := NewS3Sink(&fakePutter{err: errors.New("access denied")}, "reports", "x.json", nil)
		err := sink.Write(context.Background(), s)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "access denied"))
	})
}
