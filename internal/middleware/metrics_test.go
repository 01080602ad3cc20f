package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockMetricsRecorder struct {
	records []metricRecord
}

type metricRecord struct {
	method   string
	endpoint string
	status   string
	duration time.Duration
}

func (m *mockMetricsRecorder) record(method, endpoint, status string, duration time.Duration) {
	m.records = append(m.records, metricRecord{
		method:   method,
		endpoint: endpoint,
		status:   status,
		duration: duration,
	})
}

func (m *mockMetricsRecorder) reset() {
	m.records = []metricRecord{}
}

var mockRecorder = &mockMetricsRecorder{}

func setupMock() func() {
	original := recordHTTPRequest
	recordHTTPRequest = func(method, endpoint, status string, duration time.Duration) {
		mockRecorder.record(method, endpoint, status, duration)
	}
	return func() { recordHTTPRequest = original }
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"sets status code 200", http.StatusOK},
		{"sets status code 403", http.StatusForbidden},
		{"sets status code 500", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rw := &responseWriter{
				ResponseWriter: rec,
				statusCode:     http.StatusOK,
			}

			rw.WriteHeader(tt.statusCode)

			if rw.statusCode != tt.statusCode {
				t.Errorf("expected status code %d, got %d", tt.statusCode, rw.statusCode)
			}

			if rec.Code != tt.statusCode {
				t.Errorf("expected underlying response writer status %d, got %d", tt.statusCode, rec.Code)
			}
		})
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{
		ResponseWriter: rec,
		statusCode:     http.StatusOK,
	}

	rw.Flush()

	if !rec.Flushed {
		t.Error("expected flush to pass through to the underlying writer")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "task by id",
			path:     "/ops/tasks/123",
			expected: "/ops/tasks/:id",
		},
		{
			name:     "task cancel",
			path:     "/ops/tasks/123/cancel",
			expected: "/ops/tasks/:id/cancel",
		},
		{
			name:     "task stream",
			path:     "/ops/tasks/123/stream",
			expected: "/ops/tasks/:id/stream",
		},
		{
			name:     "tasks list",
			path:     "/ops/tasks",
			expected: "/ops/tasks",
		},
		{
			name:     "stream tokens",
			path:     "/ops/stream_tokens",
			expected: "/ops/stream_tokens",
		},
		{
			name:     "metrics endpoint",
			path:     "/metrics",
			expected: "/metrics",
		},
		{
			name:     "root path",
			path:     "/",
			expected: "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizeEndpoint(tt.path)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	cleanup := setupMock()
	defer cleanup()

	tests := []struct {
		name               string
		method             string
		path               string
		handlerStatusCode  int
		expectedEndpoint   string
		expectedStatusCode string
	}{
		{
			name:               "GET task by id with 200",
			method:             http.MethodGet,
			path:               "/ops/tasks/123",
			handlerStatusCode:  http.StatusOK,
			expectedEndpoint:   "/ops/tasks/:id",
			expectedStatusCode: "200",
		},
		{
			name:               "POST task with 200",
			method:             http.MethodPost,
			path:               "/ops/tasks",
			handlerStatusCode:  http.StatusOK,
			expectedEndpoint:   "/ops/tasks",
			expectedStatusCode: "200",
		},
		{
			name:               "forbidden stream",
			method:             http.MethodGet,
			path:               "/ops/tasks/7/stream",
			handlerStatusCode:  http.StatusForbidden,
			expectedEndpoint:   "/ops/tasks/:id/stream",
			expectedStatusCode: "403",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRecorder.reset()

			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatusCode)
				_, _ = w.Write([]byte("test response"))
			})

			handler := MetricsMiddleware(testHandler)
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.handlerStatusCode {
				t.Errorf("expected status code %d, got %d", tt.handlerStatusCode, rec.Code)
			}

			if len(mockRecorder.records) != 1 {
				t.Fatalf("expected 1 metric recorded, got %d", len(mockRecorder.records))
			}

			m := mockRecorder.records[0]
			if m.method != tt.method {
				t.Errorf("expected method %q, got %q", tt.method, m.method)
			}
			if m.endpoint != tt.expectedEndpoint {
				t.Errorf("expected endpoint %q, got %q", tt.expectedEndpoint, m.endpoint)
			}
			if m.status != tt.expectedStatusCode {
				t.Errorf("expected status %q, got %q", tt.expectedStatusCode, m.status)
			}
			if m.duration <= 0 {
				t.Error("expected duration > 0")
			}
		})
	}
}

func TestMetricsMiddleware_CallsNextHandler(t *testing.T) {
	cleanup := setupMock()
	defer cleanup()

	mockRecorder.reset()
	handlerCalled := false

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	handler := MetricsMiddleware(testHandler)
	req := httptest.NewRequest(http.MethodGet, "/ops/tasks", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("expected next handler to be called")
	}
}
