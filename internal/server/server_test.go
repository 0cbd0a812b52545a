package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/config"
	"edihub/internal/db"
	"edihub/internal/document"
	"edihub/internal/domain"
	"edihub/internal/engine"
	"edihub/internal/ingest"
	"edihub/internal/metrics"
	"edihub/internal/migrate"
)

const testSecret = "test-secret"

var (
	gridOp   = domain.NewActor("5790000000010", domain.RoleGridOperator)
	mdr      = domain.NewActor("5790000000010", domain.RoleMeteredDataResponsible)
	supplier = domain.NewActor("5790000000040", domain.RoleEnergySupplier)
	day      = time.Date(2024, 6, 3, 22, 0, 0, 0, time.UTC)
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), nil)
	reg := prometheus.NewRegistry()
	rec, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	e.Metrics = rec
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}, Metrics: reg})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T, actor domain.Actor) map[string]string {
	t.Helper()
	tok, err := IssueToken(testSecret, actor, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func do(t *testing.T, client *http.Client, method, url string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func enqueueTotals(t *testing.T, e engine.Engine, id string) {
	t.Helper()
	q := 1.5
	_, err := e.Enqueue(context.Background(), ingest.Draft{
		ID:             id,
		DocumentType:   domain.DocumentNotifyAggregatedMeasureData,
		BusinessReason: domain.ReasonBalanceFixing,
		ProcessType:    domain.ProcessReceiveEnergyResults,
		Receiver:       mdr,
		GridArea:       "805",
		RelatedTo:      domain.NoRelation,
		TimeSeries: &ingest.TimeSeries{Resolution: domain.ResolutionHour, Points: []domain.Point{
			{Time: day, Quantity: &q, Qualities: []domain.Quality{domain.QualityMeasured}},
			{Time: day.Add(time.Hour), Quantity: &q, Qualities: []domain.Quality{domain.QualityEstimated}},
		}},
		Series: document.Series{GridArea: "805", MeteringPointType: "E18", Unit: "KWH"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := do(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(body))
	}
}

func TestPeekRequiresToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := do(t, srv.Client(), http.MethodGet, srv.URL+"/v0/mailbox/peek/None", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = do(t, srv.Client(), http.MethodGet, srv.URL+"/v0/mailbox/peek/None", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	other, err := IssueToken("other-secret", gridOp, jwt.RegisteredClaims{})
	require.NoError(t, err)
	res, _ = do(t, srv.Client(), http.MethodGet, srv.URL+"/v0/mailbox/peek/None", map[string]string{"Authorization": "Bearer " + other})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestPeekDequeueRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, gridOp)

	res, _ := do(t, client, http.MethodGet, srv.URL+"/v0/mailbox/peek/Aggregations", auth)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("empty mailbox status %d", res.StatusCode)
	}

	enqueueTotals(t, srv.Engine, "calc-1")

	res, body := do(t, client, http.MethodGet, srv.URL+"/v0/mailbox/peek/Aggregations?format=Json", auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("peek status %d: %s", res.StatusCode, string(body))
	}
	id := res.Header.Get("MessageId")
	require.NotEmpty(t, id)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Contains(t, doc, "NotifyAggregatedMeasureData_MarketDocument")

	again, againBody := do(t, client, http.MethodGet, srv.URL+"/v0/mailbox/peek/Aggregations?format=Json", auth)
	require.Equal(t, http.StatusOK, again.StatusCode)
	assert.Equal(t, id, again.Header.Get("MessageId"))
	assert.Equal(t, body, againBody)

	res, body = do(t, client, http.MethodGet, srv.URL+"/v0/mailbox/"+id+"/events", auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var evts eventList
	require.NoError(t, json.Unmarshal(body, &evts))
	require.NotEmpty(t, evts.Items)
	assert.Equal(t, "bundle.created", evts.Items[0].Type)

	res, _ = do(t, client, http.MethodDelete, srv.URL+"/v0/mailbox/"+id, bearer(t, supplier))
	assert.Equal(t, http.StatusNotFound, res.StatusCode, "foreign actor")

	res, body = do(t, client, http.MethodDelete, srv.URL+"/v0/mailbox/"+id, bearer(t, mdr))
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(body))

	res, _ = do(t, client, http.MethodDelete, srv.URL+"/v0/mailbox/"+id, auth)
	assert.Equal(t, http.StatusNotFound, res.StatusCode, "second dequeue")

	res, _ = do(t, client, http.MethodGet, srv.URL+"/v0/mailbox/peek/None", auth)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestPeekXMLContentType(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	enqueueTotals(t, srv.Engine, "calc-1")
	res, body := do(t, srv.Client(), http.MethodGet, srv.URL+"/v0/mailbox/peek/None?format=Xml", bearer(t, gridOp))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, "application/xml", res.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(body), "<?xml"))
}

func TestPeekRejectsUnknownCategory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := do(t, srv.Client(), http.MethodGet, srv.URL+"/v0/mailbox/peek/Everything", bearer(t, gridOp))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(body))
}

func TestQueueStatusAndMetrics(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	enqueueTotals(t, srv.Engine, "calc-1")

	res, body := do(t, srv.Client(), http.MethodGet, srv.URL+"/v0/mailbox/status", bearer(t, mdr))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var st QueueStatusResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, gridOp.String(), st.Owner)
	assert.Equal(t, 1, st.Open)
	assert.Equal(t, 1, st.Messages)

	res, body = do(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "edihub_messages_enqueued_total")
}

func TestHandleErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&engine.ValidationDefect{MessageIndex: 2, Err: domain.ErrValidation}, http.StatusUnprocessableEntity},
		{&engine.ContentStoreConflict{Reference: "r"}, http.StatusConflict},
		{engine.ErrRoutingAmbiguity, http.StatusConflict},
		{engine.ErrConcurrencyConflict, http.StatusConflict},
		{document.ErrUnsupportedFormat, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.status, handleError(c.err).GetStatus(), c.err.Error())
	}
}

func TestOpenAPIConcurrentRequests(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	bodies := make([][]byte, 8)
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				t.Errorf("get openapi: %v", err)
				return
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				t.Errorf("openapi status %d", res.StatusCode)
				return
			}
			bodies[i], _ = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()

	var doc map[string]any
	require.NoError(t, json.Unmarshal(bodies[0], &doc))
	assert.Contains(t, doc, "paths")
	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}
