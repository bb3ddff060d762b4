package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_arxivbot_new")

	assert.NotNil(t, m.EventsReceived)
	assert.NotNil(t, m.UnauthorizedEvents)
	assert.NotNil(t, m.RunsStarted)
	assert.NotNil(t, m.RunsCompleted)
	assert.NotNil(t, m.RunsFailed)
	assert.NotNil(t, m.RunsDiscarded)
	assert.NotNil(t, m.RunDuration)
	assert.NotNil(t, m.PapersDiscovered)
	assert.NotNil(t, m.PapersDuplicate)
	assert.NotNil(t, m.PapersSummarized)
	assert.NotNil(t, m.PapersFailed)
	assert.NotNil(t, m.SourceRequestsTotal)
	assert.NotNil(t, m.SourceRequestsFailed)
	assert.NotNil(t, m.LLMRequestsTotal)
	assert.NotNil(t, m.LLMRequestsFailed)
	assert.NotNil(t, m.MessagesSent)
	assert.NotNil(t, m.MessagesFailed)
}

func TestRecordEvent(t *testing.T) {
	m := NewMetrics("test_record_event")

	m.RecordEvent("start")
	m.RecordEvent("start")
	m.RecordEvent("text")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsReceived.WithLabelValues("start")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsReceived.WithLabelValues("text")))
}

func TestRecordUnauthorized(t *testing.T) {
	m := NewMetrics("test_record_unauthorized")

	initial := testutil.ToFloat64(m.UnauthorizedEvents)
	m.RecordUnauthorized()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.UnauthorizedEvents))
}

func TestRecordRunLifecycle(t *testing.T) {
	m := NewMetrics("test_record_run")

	m.RecordRunStarted()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsStarted))

	m.RecordRunCompleted(12.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsCompleted))

	m.RecordRunFailed(2.0)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsFailed))

	m.RecordRunDiscarded()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsDiscarded))

	histCount, err := getHistogramSampleCount(m.RunDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), histCount)
}

func TestRecordPaperCounters(t *testing.T) {
	m := NewMetrics("test_record_papers")

	m.RecordPapersDiscovered(10)
	m.RecordPaperDuplicates(3)
	m.RecordPaperSummarized()
	m.RecordPaperFailed()

	assert.Equal(t, float64(10), testutil.ToFloat64(m.PapersDiscovered))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PapersDuplicate))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PapersSummarized))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PapersFailed))
}

func TestRecordSourceRequest(t *testing.T) {
	m := NewMetrics("test_record_source")

	m.RecordSourceRequest("query", 0.3)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsTotal.WithLabelValues("query")))

	m.RecordSourceRequestFailed("html", "timeout")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRequestsFailed.WithLabelValues("html", "timeout")))
}

func TestRecordLLMRequest(t *testing.T) {
	m := NewMetrics("test_record_llm")

	m.RecordLLMRequest("section_summary", "gpt-4-turbo", 1.2)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("section_summary", "gpt-4-turbo")))

	m.RecordLLMRequestFailed("digest", "gpt-4-turbo", "rate_limit")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsFailed.WithLabelValues("digest", "gpt-4-turbo", "rate_limit")))
}

func TestRecordMessages(t *testing.T) {
	m := NewMetrics("test_record_messages")

	m.RecordMessageSent()
	m.RecordMessageSent()
	m.RecordMessageFailed()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesSent))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesFailed))
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var out = &dto.Metric{}
	if err := m.Write(out); err != nil {
		return 0, err
	}

	return out.Histogram.GetSampleCount(), nil
}
