package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/jpeg"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"irodori/internal/detector"
	"irodori/internal/frame"
	"irodori/internal/palette"
)

const driverFake DriverType = "fake"

// fakeDevice はreadFnの結果を返すテスト用Device
type fakeDevice struct {
	readFn func(ctx context.Context) (*frame.Frame, error)
	reads  atomic.Int32
	closes atomic.Int32
}

func (d *fakeDevice) Read(ctx context.Context) (*frame.Frame, error) {
	d.reads.Add(1)
	return d.readFn(ctx)
}

func (d *fakeDevice) Close() error {
	d.closes.Add(1)
	return nil
}

// fakeBackend は開いた回数を数えるテスト用ドライバ
type fakeBackend struct {
	mu      sync.Mutex
	opens   int
	openErr error
	device  *fakeDevice

	// beforeOpen は開く前に呼ばれる。エラーを返すと開けない
	beforeOpen func(ctx context.Context) error
}

func (b *fakeBackend) open(ctx context.Context, _ Source) (Device, error) {
	if b.beforeOpen != nil {
		if err := b.beforeOpen(ctx); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opens++
	return b.device, nil
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// yellowFrame は中央に黄色の正方形があるBGRフレームを作る
func yellowFrame() *frame.Frame {
	f := frame.New(200, 200, frame.OrderBGR)
	for y := 50; y < 150; y++ {
		for x := 50; x < 150; x++ {
			f.SetRGB(x, y, 250, 240, 20)
		}
	}
	return f
}

func newFakeBackend(readFn func(ctx context.Context) (*frame.Frame, error)) *fakeBackend {
	return &fakeBackend{device: &fakeDevice{readFn: readFn}}
}

func newTestSession(t *testing.T, backend *fakeBackend, claims *ClaimRegistry, opts ...SessionOption) *Session {
	t.Helper()

	processor, err := detector.NewProcessor(detector.DefaultOptions())
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	factory := NewDeviceFactory()
	factory.Register(driverFake, backend.open)

	cfg := SessionConfig{
		Driver:      driverFake,
		Source:      Source{Index: 0},
		ReadTimeout: 5 * time.Second,
	}
	opts = append([]SessionOption{WithDeviceFactory(factory), WithClaims(claims)}, opts...)
	return NewSession(cfg, processor, opts...)
}

// recordingPublisher は送信された結果を記録する
type recordingPublisher struct {
	mu      sync.Mutex
	results []detector.Result
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, result detector.Result, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}

func TestSession_PollBeforeStart(t *testing.T) {
	backend := newFakeBackend(func(context.Context) (*frame.Frame, error) {
		return yellowFrame(), nil
	})
	session := newTestSession(t, backend, NewClaimRegistry())

	result := session.Poll(context.Background(), 0)
	if result.Status != PollInactive {
		t.Errorf("Expected inactive, got %s", result.Status)
	}
	if backend.openCount() != 0 || backend.device.reads.Load() != 0 {
		t.Error("Poll before start should not touch the device")
	}
	if session.State() != StateUninitialized {
		t.Errorf("Expected uninitialized, got %s", session.State())
	}

	if _, err := session.AcquireFrame(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

func TestSession_StartPollStop(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(func(context.Context) (*frame.Frame, error) {
		return yellowFrame(), nil
	})
	publisher := &recordingPublisher{}
	session := newTestSession(t, backend, NewClaimRegistry(), WithPublisher(publisher))

	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// 二重開始は何もしない
	if err := session.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if backend.openCount() != 1 {
		t.Errorf("Expected device opened once, got %d", backend.openCount())
	}

	result := session.Poll(ctx, 0)
	if result.Status != PollSuccess {
		t.Fatalf("Expected success, got %s (%s: %s)", result.Status, result.Code, result.Message)
	}
	if result.Color == nil || result.Color.Name != palette.NameYellow {
		t.Fatalf("unexpected color: %+v", result.Color)
	}
	if result.Color.Region != (frame.Region{StartX: 50, StartY: 50, EndX: 150, EndY: 150}) {
		t.Errorf("unexpected region: %v", result.Color.Region)
	}

	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(result.Frame, prefix) {
		t.Fatalf("frame is not a JPEG data URI: %.40s", result.Frame)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(result.Frame, prefix))
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("unexpected frame size: %v", b)
	}

	last, _, ok := session.LastResult()
	if !ok || last != *result.Color {
		t.Errorf("LastResult = %+v, want %+v", last, *result.Color)
	}
	if publisher.count() != 1 {
		t.Errorf("Expected 1 published result, got %d", publisher.count())
	}

	status := session.Status()
	if !status.Running || status.State != StateOpen || status.LastResult == nil {
		t.Errorf("unexpected status: %+v", status)
	}

	if err := session.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// 二重停止もエラーにならない
	if err := session.Stop(ctx); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if session.State() != StateClosed {
		t.Errorf("Expected closed, got %s", session.State())
	}
	if backend.device.closes.Load() != 1 {
		t.Errorf("Expected device closed once, got %d", backend.device.closes.Load())
	}

	if result := session.Poll(ctx, 0); result.Status != PollInactive {
		t.Errorf("Expected inactive after stop, got %s", result.Status)
	}
}

func TestSession_RestartAfterStop(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(func(context.Context) (*frame.Frame, error) {
		return yellowFrame(), nil
	})
	session := newTestSession(t, backend, NewClaimRegistry())

	for i := 0; i < 2; i++ {
		if err := session.Start(ctx); err != nil {
			t.Fatalf("Start #%d failed: %v", i+1, err)
		}
		if result := session.Poll(ctx, 0); result.Status != PollSuccess {
			t.Fatalf("Poll #%d: %s (%s)", i+1, result.Status, result.Message)
		}
		if err := session.Stop(ctx); err != nil {
			t.Fatalf("Stop #%d failed: %v", i+1, err)
		}
	}

	if backend.openCount() != 2 {
		t.Errorf("Expected 2 opens, got %d", backend.openCount())
	}
}

func TestSession_StartDeviceUnavailable(t *testing.T) {
	claims := NewClaimRegistry()
	backend := newFakeBackend(nil)
	backend.openErr = errors.New("no such device")
	session := newTestSession(t, backend, claims)

	err := session.Start(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if session.Running() {
		t.Error("session should not be running")
	}
	if session.State() == StateOpen {
		t.Error("session should not be open")
	}
	if _, held := claims.Holder(DeviceKey(driverFake, Source{})); held {
		t.Error("claim should be released after a failed open")
	}

	if result := session.Poll(context.Background(), 0); result.Status != PollInactive {
		t.Errorf("Expected inactive, got %s", result.Status)
	}
}

func TestSession_PollErrors(t *testing.T) {
	testCases := []struct {
		name string
		read func(context.Context) (*frame.Frame, error)
		want ErrorCode
	}{
		{
			name: "フレームなし",
			read: func(context.Context) (*frame.Frame, error) { return nil, ErrNoFrame },
			want: CodeNoFrame,
		},
		{
			name: "読み取りエラー",
			read: func(context.Context) (*frame.Frame, error) { return nil, errors.New("broken pipe") },
			want: CodeNoFrame,
		},
		{
			name: "空のフレーム",
			read: func(context.Context) (*frame.Frame, error) { return frame.New(0, 0, frame.OrderBGR), nil },
			want: CodeNoFrame,
		},
		{
			name: "注目領域が空",
			read: func(context.Context) (*frame.Frame, error) { return frame.New(1, 1, frame.OrderBGR), nil },
			want: CodeEmptyRegion,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			session := newTestSession(t, newFakeBackend(tc.read), NewClaimRegistry())
			if err := session.Start(ctx); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer func() { _ = session.Stop(ctx) }()

			result := session.Poll(ctx, 0)
			if result.Status != PollError {
				t.Fatalf("Expected error status, got %s", result.Status)
			}
			if result.Code != tc.want {
				t.Errorf("Code = %s, want %s", result.Code, tc.want)
			}
			if result.Frame != "" || result.Color != nil {
				t.Error("error result should not carry a frame or color")
			}
			if _, _, ok := session.LastResult(); ok {
				t.Error("LastResult should be empty after failures")
			}
		})
	}
}

func TestSession_NoFrameIsRetryable(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	backend := newFakeBackend(func(context.Context) (*frame.Frame, error) {
		if calls.Add(1) == 1 {
			return nil, ErrNoFrame
		}
		return yellowFrame(), nil
	})
	session := newTestSession(t, backend, NewClaimRegistry())
	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = session.Stop(ctx) }()

	if result := session.Poll(ctx, 0); result.Code != CodeNoFrame {
		t.Fatalf("Expected no_frame, got %s %s", result.Status, result.Code)
	}
	if result := session.Poll(ctx, 0); result.Status != PollSuccess {
		t.Fatalf("Expected success on retry, got %s (%s)", result.Status, result.Message)
	}
}

func TestSession_InvalidQuality(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(func(context.Context) (*frame.Frame, error) {
		return yellowFrame(), nil
	})
	session := newTestSession(t, backend, NewClaimRegistry())
	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = session.Stop(ctx) }()

	result := session.Poll(ctx, 101)
	if result.Code != CodeEncodingFailed {
		t.Errorf("Expected encoding_failed, got %s %s", result.Status, result.Code)
	}
}

func TestSession_PublishFailureDoesNotFailCycle(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(func(context.Context) (*frame.Frame, error) {
		return yellowFrame(), nil
	})
	publisher := &recordingPublisher{err: errors.New("broker down")}
	session := newTestSession(t, backend, NewClaimRegistry(), WithPublisher(publisher))
	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = session.Stop(ctx) }()

	if result := session.Poll(ctx, 0); result.Status != PollSuccess {
		t.Errorf("Expected success, got %s (%s)", result.Status, result.Message)
	}
	if publisher.count() != 1 {
		t.Errorf("Expected publish attempt, got %d", publisher.count())
	}
}

func TestSession_ClaimExclusive(t *testing.T) {
	ctx := context.Background()
	claims := NewClaimRegistry()
	read := func(context.Context) (*frame.Frame, error) { return yellowFrame(), nil }

	first := newTestSession(t, newFakeBackend(read), claims)
	second := newTestSession(t, newFakeBackend(read), claims)

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := second.Start(ctx); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable for second session, got %v", err)
	}
	if holder, _ := claims.Holder(DeviceKey(driverFake, Source{})); holder != first.ID() {
		t.Errorf("holder = %s, want %s", holder, first.ID())
	}

	if err := first.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release failed: %v", err)
	}
	_ = second.Stop(ctx)
}

func TestSession_StopDuringRead(t *testing.T) {
	ctx := context.Background()
	reading := make(chan struct{})
	var once sync.Once

	backend := newFakeBackend(func(ctx context.Context) (*frame.Frame, error) {
		once.Do(func() { close(reading) })
		<-ctx.Done()
		return nil, ctx.Err()
	})
	session := newTestSession(t, backend, NewClaimRegistry())
	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan PollResult, 1)
	go func() {
		done <- session.Poll(ctx, 0)
	}()

	select {
	case <-reading:
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not start reading")
	}

	stopped := make(chan error, 1)
	go func() {
		stopped <- session.Stop(ctx)
	}()

	select {
	case result := <-done:
		if result.Status != PollInactive {
			t.Errorf("Expected inactive after stop, got %s (%s)", result.Status, result.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not return after Stop")
	}

	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	if session.State() != StateClosed {
		t.Errorf("Expected closed, got %s", session.State())
	}
}

func TestErrorCodeOf(t *testing.T) {
	testCases := []struct {
		err  error
		want ErrorCode
	}{
		{ErrDeviceUnavailable, CodeDeviceUnavailable},
		{ErrNoFrame, CodeNoFrame},
		{palette.ErrEmptyRegion, CodeEmptyRegion},
		{frame.ErrEncoding, CodeEncodingFailed},
		{ErrNotRunning, CodeDeviceUnavailable},
		{errors.New("boom"), CodeInternal},
	}

	for _, tc := range testCases {
		if got := ErrorCodeOf(tc.err); got != tc.want {
			t.Errorf("ErrorCodeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

// assertStopped は停止後の状態を検証する
func assertStopped(t *testing.T, session *Session, claims *ClaimRegistry, backend *fakeBackend) {
	t.Helper()

	if session.State() == StateOpen {
		t.Errorf("Expected device released, got %s", session.State())
	}
	if session.Running() {
		t.Error("Expected not running after Stop")
	}
	if status := session.Status(); status.Running {
		t.Errorf("Status reports running: %+v", status)
	}
	if _, held := claims.Holder(DeviceKey(driverFake, Source{})); held {
		t.Error("claim should be released")
	}
	if opened := backend.openCount(); int(backend.device.closes.Load()) != opened {
		t.Errorf("opened %d times but closed %d times", opened, backend.device.closes.Load())
	}

	result := session.Poll(context.Background(), 0)
	if result.Status != PollInactive {
		t.Errorf("Expected inactive after stop, got %s (%s: %s)", result.Status, result.Code, result.Message)
	}
}

func TestSession_StopDuringStart(t *testing.T) {
	ctx := context.Background()
	opening := make(chan struct{})
	gate := make(chan struct{})

	backend := newFakeBackend(func(context.Context) (*frame.Frame, error) {
		return yellowFrame(), nil
	})
	// 開く処理がコンテキストを見ないデバイス
	backend.beforeOpen = func(context.Context) error {
		close(opening)
		<-gate
		return nil
	}
	claims := NewClaimRegistry()
	session := newTestSession(t, backend, claims)

	started := make(chan error, 1)
	go func() {
		started <- session.Start(ctx)
	}()

	select {
	case <-opening:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not begin opening")
	}

	stopped := make(chan error, 1)
	go func() {
		stopped <- session.Stop(ctx)
	}()

	// Stopが停止を要求してから開き終わらせる
	time.Sleep(50 * time.Millisecond)
	close(gate)

	for name, ch := range map[string]chan error{"Start": started, "Stop": stopped} {
		select {
		case err := <-ch:
			if err != nil {
				t.Errorf("%s failed: %v", name, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not return", name)
		}
	}

	assertStopped(t, session, claims, backend)

	// 停止後も再び開始できる
	backend.beforeOpen = nil
	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start after stop failed: %v", err)
	}
	if result := session.Poll(ctx, 0); result.Status != PollSuccess {
		t.Errorf("Expected success after restart, got %s (%s)", result.Status, result.Message)
	}
	_ = session.Stop(ctx)
}

func TestSession_StopCancelsOpen(t *testing.T) {
	ctx := context.Background()
	opening := make(chan struct{})

	backend := newFakeBackend(func(context.Context) (*frame.Frame, error) {
		return yellowFrame(), nil
	})
	// open_timeoutまで待ち続けるデバイス
	backend.beforeOpen = func(ctx context.Context) error {
		close(opening)
		<-ctx.Done()
		return ctx.Err()
	}
	claims := NewClaimRegistry()
	session := newTestSession(t, backend, claims)

	started := make(chan error, 1)
	go func() {
		started <- session.Start(ctx)
	}()

	select {
	case <-opening:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not begin opening")
	}

	begin := time.Now()
	if err := session.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Stop waited %v for the open to time out", elapsed)
	}

	select {
	case err := <-started:
		if err != nil {
			t.Errorf("Start should yield to Stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}

	assertStopped(t, session, claims, backend)
}

func TestSession_ReleaseDuringRead(t *testing.T) {
	ctx := context.Background()
	reading := make(chan struct{})
	var once sync.Once

	backend := newFakeBackend(func(ctx context.Context) (*frame.Frame, error) {
		once.Do(func() { close(reading) })
		<-ctx.Done()
		return nil, ctx.Err()
	})
	claims := NewClaimRegistry()
	session := newTestSession(t, backend, claims)
	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan PollResult, 1)
	go func() {
		done <- session.Poll(ctx, 0)
	}()

	select {
	case <-reading:
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not start reading")
	}

	// 読み取りタイムアウト(5秒)を待たずに戻る
	begin := time.Now()
	if err := session.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Release waited %v for the read to time out", elapsed)
	}

	if result := <-done; result.Status != PollInactive {
		t.Errorf("Expected inactive, got %s (%s)", result.Status, result.Code)
	}
	assertStopped(t, session, claims, backend)
}
