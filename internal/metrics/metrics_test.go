package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.ObserveDeployment("development", "DCIP", StatusSuccess, 2*time.Second, 21000)
	r.ObserveDeployment("development", "DCIP", StatusReverted, time.Second, 0)
	r.ObserveAssertion("development", "Presale", "rate", true)
	r.ObserveAssertion("development", "PrivateSale", "getName", false)
	r.MarkRun("development", "migrate")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.deployments.WithLabelValues("development", "DCIP", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deployments.WithLabelValues("development", "DCIP", StatusReverted)))
	assert.Equal(t, 21000.0, testutil.ToFloat64(r.gasUsed.WithLabelValues("development")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.assertions.WithLabelValues("development", "PrivateSale", "getName", "fail")))

	count, err := testutil.GatherAndCount(r.Gatherer(), "dcip_deployment_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveDeployment("development", "DCIP", StatusSuccess, time.Second, 1)
		r.ObserveAssertion("development", "Presale", "rate", true)
		r.MarkRun("development", "test")
	})
	assert.NoError(t, r.Push(context.Background(), "http://127.0.0.1:1", "job", "development"))
	assert.NotNil(t, r.Gatherer())
}

func TestRecorder_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.ObserveDeployment("testnet", "DCIP", StatusSuccess, time.Second, 1)

	require.NoError(t, r.Push(context.Background(), srv.URL, "dcipctl", "testnet"))
	assert.Equal(t, "/metrics/job/dcipctl/instance/testnet", gotPath)
	assert.True(t, strings.Contains(gotBody, "dcip_deployments_total"))

	assert.NoError(t, r.Push(context.Background(), "", "dcipctl", "testnet"))
}

func TestRecorder_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "dcipctl", "testnet")
	assert.Error(t, err)
}
