//go:build gocv

package camera

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"irodori/internal/frame"
)

func init() {
	registerBuiltin(DriverGoCV, openGoCVDevice)
}

// gocvRead は1回分の読み取り。doneが閉じた後にframeとerrが確定する
type gocvRead struct {
	done  chan struct{}
	frame *frame.Frame
	err   error
}

// gocvDevice はOpenCVのVideoCaptureから読むDevice
//
// VideoCapture.Readはキャンセルできないため別goroutineで読み、
// 読み取り中に次のReadが来た場合は同じ結果を待つ。
type gocvDevice struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	mat      gocv.Mat
	inflight *gocvRead
	closed   bool
}

// openGoCVDevice はデバイス番号（Pathが指定されていればパス）でカメラを開く
func openGoCVDevice(ctx context.Context, src Source) (Device, error) {
	var target interface{} = src.Index
	if src.Path != "" {
		target = src.Path
	}

	type opened struct {
		capture *gocv.VideoCapture
		err     error
	}
	done := make(chan opened, 1)
	go func() {
		capture, err := gocv.OpenVideoCapture(target)
		done <- opened{capture, err}
	}()

	var capture *gocv.VideoCapture
	select {
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("%w: %v: %v", ErrDeviceUnavailable, target, o.err)
		}
		capture = o.capture
	case <-ctx.Done():
		// 後から開けた場合も確実に閉じる
		go func() {
			if o := <-done; o.capture != nil {
				_ = o.capture.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %v: %v", ErrDeviceUnavailable, target, ctx.Err())
	}

	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("%w: %v を開けません", ErrDeviceUnavailable, target)
	}

	if src.Width > 0 && src.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(src.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(src.Height))
	}
	if src.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(src.FPS))
	}

	return &gocvDevice{capture: capture, mat: gocv.NewMat()}, nil
}

// Read は1フレームを読み、BGR順のフレームとして返す
func (d *gocvDevice) Read(ctx context.Context) (*frame.Frame, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: デバイスは閉じられています", ErrNoFrame)
	}
	if d.inflight == nil {
		r := &gocvRead{done: make(chan struct{})}
		d.inflight = r
		go func() {
			r.frame, r.err = d.readOnce()
			close(r.done)
		}()
	}
	r := d.inflight
	d.mu.Unlock()

	select {
	case <-r.done:
		d.mu.Lock()
		if d.inflight == r {
			d.inflight = nil
		}
		d.mu.Unlock()
		return r.frame, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, ctx.Err())
	}
}

func (d *gocvDevice) readOnce() (*frame.Frame, error) {
	if ok := d.capture.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, fmt.Errorf("%w: カメラからの読み取りに失敗", ErrNoFrame)
	}
	if d.mat.Channels() != 3 {
		return nil, fmt.Errorf("%w: 未対応のチャンネル数: %d", ErrNoFrame, d.mat.Channels())
	}

	f, err := frame.FromBGR(d.mat.Cols(), d.mat.Rows(), d.mat.ToBytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	return f, nil
}

// Close は読み取り中のフレームを待ってからカメラを解放する
func (d *gocvDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	r := d.inflight
	d.mu.Unlock()

	if r != nil {
		<-r.done
	}

	err := d.capture.Close()
	_ = d.mat.Close()
	if err != nil {
		return fmt.Errorf("カメラの解放に失敗: %w", err)
	}
	return nil
}
