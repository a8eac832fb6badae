package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, mode string, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL, Mode: mode, Timeout: 5 * time.Second}, zap.NewNop())
}

func videoOf(content string) entity.VideoFile {
	return entity.VideoFile{
		Name: "shot.mp4",
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}

type progressLog struct {
	mu   sync.Mutex
	seen []int
}

func (p *progressLog) record(percent int) {
	p.mu.Lock()
	p.seen = append(p.seen, percent)
	p.mu.Unlock()
}

func (p *progressLog) values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.seen...)
}

func TestUploadSendsMultipartAndReportsProgress(t *testing.T) {
	content := strings.Repeat("v", 256<<10)
	client := newTestClient(t, "player", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "client-id", r.FormValue("video_id"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "shot.mp4", hdr.Filename)
		assert.Equal(t, "video/mp4", hdr.Header.Get("Content-Type"))
		data, _ := io.ReadAll(f)
		assert.Len(t, data, len(content))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"video_id":"client-id","status":"queued"}`))
	}))

	progress := &progressLog{}
	handle, err := client.Upload(context.Background(), port.UploadRequest{VideoID: "client-id", File: videoOf(content)}, progress.record)
	require.NoError(t, err)

	assert.Equal(t, "client-id", handle.VideoID)
	assert.Equal(t, entity.JobStatusQueued, handle.Status)
	assert.Nil(t, handle.Result)

	seen := progress.values()
	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, progress.values(), "no progress after Upload returned")
}

func TestUploadSynchronousResult(t *testing.T) {
	client := newTestClient(t, "player", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{
			"video_id":"v1",
			"action":{"label":"jump_shot","confidence":0.93,"probabilities":{"jump_shot":0.93,"layup":0.07}},
			"metrics":{"overall_score":0.81,"elbow_angle":88.5},
			"recommendations":[{"category":"form","title":"Tuck elbow","description":"...","priority":"high"}],
			"timestamp":"2025-03-01T12:00:00"
		}`))
	}))

	handle, err := client.Upload(context.Background(), port.UploadRequest{VideoID: "v1", File: videoOf("abc")}, nil)
	require.NoError(t, err)
	require.NotNil(t, handle.Result)
	assert.Equal(t, entity.JobStatusCompleted, handle.Status)
	assert.Equal(t, "jump_shot", handle.Result.Action.Label)
	assert.InDelta(t, 88.5, handle.Result.Metrics.ElbowAngle, 1e-9)
	assert.Len(t, handle.Result.Recommendations, 1)
}

func TestUploadFallsBackToRequestedID(t *testing.T) {
	client := newTestClient(t, "player", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{}`))
	}))
	handle, err := client.Upload(context.Background(), port.UploadRequest{VideoID: "mine", File: videoOf("abc")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mine", handle.VideoID)
}

func TestStructuredHTTPError(t *testing.T) {
	client := newTestClient(t, "player", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":{"error":"no_player_detected","message":"No player detected","suggestions":["Film from the side"]}}`))
	}))

	_, err := client.GetResult(context.Background(), "v1")
	var httpErr *entity.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 422, httpErr.StatusCode)
	assert.Equal(t, "no_player_detected", httpErr.Code)
	assert.Equal(t, "No player detected", httpErr.Message)
	assert.Equal(t, []string{"Film from the side"}, httpErr.Suggestions)
}

func TestParseHTTPErrorShapes(t *testing.T) {
	e := parseHTTPError(400, []byte(`{"detail":"Video too short"}`))
	assert.Equal(t, "Video too short", e.Message)

	e = parseHTTPError(400, []byte(`{"error":"Unsupported codec"}`))
	assert.Equal(t, "Unsupported codec", e.Message)

	e = parseHTTPError(413, []byte(`{"code":"too_large","message":"File too large"}`))
	assert.Equal(t, "too_large", e.Code)
	assert.Equal(t, "File too large", e.Message)

	e = parseHTTPError(502, []byte(`<html>bad gateway</html>`))
	assert.Empty(t, e.Message)
	assert.Equal(t, 502, e.StatusCode)
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(ClientConfig{BaseURL: srv.URL}, zap.NewNop())

	_, err := client.GetStatus(context.Background(), "v1")
	var netErr *entity.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "get status", netErr.Op)
}

func TestCancelledRequestIsNotNetworkError(t *testing.T) {
	client := newTestClient(t, "player", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := client.GetStatus(ctx, "v1")
	require.ErrorIs(t, err, context.Canceled)
	var netErr *entity.NetworkError
	assert.False(t, errors.As(err, &netErr))
}

func TestGetStatus(t *testing.T) {
	client := newTestClient(t, "player", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos/abc%20d/status", r.URL.EscapedPath())
		w.Write([]byte(`{"status":"processing","progress_percent":42.5,"current_step":"pose estimation"}`))
	}))

	report, err := client.GetStatus(context.Background(), "abc d")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusProcessing, report.Status)
	assert.Equal(t, "abc d", report.VideoID)
	assert.Equal(t, "pose estimation", report.CurrentStep)
}

func TestGetHistoryDegradesWhenMissing(t *testing.T) {
	client := newTestClient(t, "player", http.NotFoundHandler())
	items, err := client.GetHistory(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestGetHistoryShapes(t *testing.T) {
	for _, body := range []string{
		`[{"video_id":"a","action":"layup","metrics":{"overall_score":0.5}}]`,
		`{"history":[{"video_id":"a","action":"layup","metrics":{"overall_score":0.5}}]}`,
	} {
		client := newTestClient(t, "player", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "3", r.URL.Query().Get("limit"))
			w.Write([]byte(body))
		}))
		items, err := client.GetHistory(context.Background(), 3)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "layup", items[0].Action)
	}
}

func TestTeamModeRoutes(t *testing.T) {
	var trigger entity.TeamAnalysisParams
	client := newTestClient(t, "team", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/videos":
			io.Copy(io.Discard, r.Body)
			w.Write([]byte(`{"id":"srv-1"}`))
		case "/analysis/team/srv-1":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&trigger))
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))

	handle, err := client.Upload(context.Background(), port.UploadRequest{File: videoOf("abc")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", handle.VideoID)

	require.NoError(t, client.TriggerTeamAnalysis(context.Background(), "srv-1", entity.TeamAnalysisParams{JerseyColor: "red", TeamSide: "left"}))
	assert.Equal(t, "red", trigger.JerseyColor)
}

func TestTeamTriggerUnavailableInPlayerMode(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://localhost"}, zap.NewNop())
	assert.Error(t, client.TriggerTeamAnalysis(context.Background(), "x", entity.TeamAnalysisParams{}))
}

func TestSocketURLsDeriveFromBase(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "https://api.example.com/"}, zap.NewNop())
	assert.Equal(t, "wss://api.example.com/ws/video-stream/v1", client.RecordedStreamURL("v1"))
	assert.Equal(t, "wss://api.example.com/ws/analyze", client.LiveStreamURL())
}
