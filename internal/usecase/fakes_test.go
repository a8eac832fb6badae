package usecase

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	"github.com/courtvision/analysis-client/internal/domain/port"
	"github.com/stretchr/testify/require"
)

// fakeAPI scripts the analysis server.
type fakeAPI struct {
	mu sync.Mutex

	uploadCalls  int
	statusCalls  int
	resultCalls  int
	triggerCalls int
	historyCalls int

	progress    []int
	uploadErr   error
	uploadGate  chan struct{}
	syncResult  bool
	serverID    string
	statuses    []entity.StatusReport
	statusErr   error
	result      *entity.AnalysisResult
	teamParams  entity.TeamAnalysisParams
	history     []entity.HistoricalData
	historyErr  error
	lastUpload  port.UploadRequest
	polledIDs   []string
	uploadStart chan struct{}
	// statusStall makes GetStatus block until its context ends, like a
	// request that never gets a response.
	statusStall bool
}

var _ port.AnalysisAPI = (*fakeAPI)(nil)

func (f *fakeAPI) Upload(ctx context.Context, req port.UploadRequest, onProgress port.ProgressFunc) (*entity.ServerJobHandle, error) {
	f.mu.Lock()
	f.uploadCalls++
	f.lastUpload = req
	gate, started := f.uploadGate, f.uploadStart
	f.uploadStart = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	for _, p := range f.progress {
		onProgress(p)
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	id := req.VideoID
	if f.serverID != "" {
		id = f.serverID
	}
	h := &entity.ServerJobHandle{VideoID: id, Status: entity.JobStatusQueued}
	if f.syncResult {
		h.Result = f.resultFor(id)
	}
	return h, nil
}

func (f *fakeAPI) TriggerTeamAnalysis(_ context.Context, _ string, params entity.TeamAnalysisParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggerCalls++
	f.teamParams = params
	return nil
}

func (f *fakeAPI) GetStatus(ctx context.Context, videoID string) (*entity.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	f.polledIDs = append(f.polledIDs, videoID)
	if f.statusStall {
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return nil, &entity.NetworkError{Op: "get status", Err: ctx.Err()}
	}
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return &entity.StatusReport{VideoID: videoID, Status: entity.JobStatusProcessing}, nil
	}
	r := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	r.VideoID = videoID
	return &r, nil
}

func (f *fakeAPI) GetResult(_ context.Context, videoID string) (*entity.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	return f.resultFor(videoID), nil
}

func (f *fakeAPI) resultFor(videoID string) *entity.AnalysisResult {
	if f.result != nil {
		r := *f.result
		return &r
	}
	return &entity.AnalysisResult{
		VideoID: videoID,
		Action:  entity.ActionClassification{Label: "jump_shot", Confidence: 0.91},
		Metrics: entity.PerformanceMetrics{OverallScore: 0.8},
	}
}

func (f *fakeAPI) GetHistory(_ context.Context, _ int) ([]entity.HistoricalData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	return f.history, f.historyErr
}

func (f *fakeAPI) Health(context.Context) (*entity.HealthReport, error) {
	return &entity.HealthReport{Status: "ok"}, nil
}

func (f *fakeAPI) SocketURL(path string) string { return "ws://analysis.test" + path }

func (f *fakeAPI) setStatuses(reports ...entity.StatusReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = reports
}

func (f *fakeAPI) counts() (upload, status, result int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadCalls, f.statusCalls, f.resultCalls
}

func processing(pct float64) entity.StatusReport {
	return entity.StatusReport{Status: entity.JobStatusProcessing, ProgressPercent: pct, CurrentStep: "pose_estimation"}
}

func completed() entity.StatusReport {
	return entity.StatusReport{Status: entity.JobStatusCompleted, ProgressPercent: 100}
}

// fakeSocket delivers whatever the test pushes on in; closing in ends the
// stream with readErr, or io.EOF when readErr is nil.
type fakeSocket struct {
	in       chan []byte
	readErr  error
	writeErr error

	mu        sync.Mutex
	written   [][]byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (s *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case <-s.closed:
		return nil, errors.New("use of closed network connection")
	default:
	}
	select {
	case m, ok := <-s.in:
		if !ok {
			if s.readErr != nil {
				return nil, s.readErr
			}
			return nil, io.EOF
		}
		return m, nil
	case <-s.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (s *fakeSocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return &entity.SocketError{Err: errors.New("closed")}
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, data)
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

type fakeDialer struct {
	mu      sync.Mutex
	urls    []string
	sockets []*fakeSocket
	err     error
	dialed  chan string
	// script is delivered on every new socket, which then closes cleanly.
	script [][]byte
	// scriptFor overrides script for a single url.
	scriptFor map[string][][]byte
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan string, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, url string) (port.Socket, error) {
	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		d.dialed <- url
	}()
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, &entity.SocketError{Endpoint: url, Err: d.err}
	}
	s := newFakeSocket()
	script := d.script
	if own, ok := d.scriptFor[url]; ok {
		script = own
	}
	if script != nil {
		for _, m := range script {
			s.in <- m
		}
		close(s.in)
	}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) socket(t *testing.T, i int) *fakeSocket {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.Greater(t, len(d.sockets), i, "socket %d was never dialed", i)
	return d.sockets[i]
}

// taggedImage lets tests follow a frame from message to surface.
type taggedImage struct {
	*image.Gray
	tag string
}

// fakeCodec decodes "tag:<x>" payloads and rejects everything else.
type fakeCodec struct {
	mu      sync.Mutex
	encoded int
}

func (c *fakeCodec) Decode(data string, _ entity.FrameFormat) (image.Image, error) {
	tag, ok := strings.CutPrefix(data, "tag:")
	if !ok {
		return nil, errors.New("not a test frame")
	}
	return taggedImage{Gray: image.NewGray(image.Rect(0, 0, 2, 2)), tag: tag}, nil
}

func (c *fakeCodec) EncodeDataURL(image.Image) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoded++
	return "data:image/jpeg;base64,AAAA", nil
}

type recordingSurface struct {
	mu    sync.Mutex
	tags  []string
	lines []string
}

func (s *recordingSurface) Draw(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag := ""
	if ti, ok := img.(taggedImage); ok {
		tag = ti.tag
	}
	s.tags = append(s.tags, tag)
	return nil
}

func (s *recordingSurface) SetLines(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append([]string(nil), lines...)
}

func (s *recordingSurface) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tags))
	for i, t := range s.tags {
		out[i] = "/frames/" + t + ".jpg"
	}
	return out
}

func (s *recordingSurface) drawn() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tags...)
}

func (s *recordingSurface) caption() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

type fakeCamera struct {
	err    error
	opened int
	src    *fakeSource
	mu     sync.Mutex
}

func (c *fakeCamera) Open(context.Context) (port.FrameSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened++
	if c.err != nil {
		return nil, c.err
	}
	c.src = &fakeSource{}
	c.src.active.Store(true)
	return c.src, nil
}

func (c *fakeCamera) source() *fakeSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src
}

type fakeSource struct {
	active  atomic.Bool
	stops   int
	stopsMu sync.Mutex
}

func (s *fakeSource) CurrentFrame() (image.Image, error) {
	if !s.active.Load() {
		return nil, entity.ErrNoFrame
	}
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(0, 0, color.Gray{Y: 200})
	return img, nil
}

func (s *fakeSource) Active() bool { return s.active.Load() }

func (s *fakeSource) Stop() error {
	s.stopsMu.Lock()
	defer s.stopsMu.Unlock()
	s.stops++
	s.active.Store(false)
	return nil
}

func (s *fakeSource) stopCount() int {
	s.stopsMu.Lock()
	defer s.stopsMu.Unlock()
	return s.stops
}

func frameMsg(tag string) []byte {
	return []byte(`{"type":"frame","data":"tag:` + tag + `","format":"jpeg"}`)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func testVideo(name string, size int64) entity.VideoFile {
	return entity.VideoFile{
		Name: name,
		Size: size,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("video")), nil },
	}
}
