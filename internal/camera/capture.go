package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"irodori/internal/frame"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// V4L2Capturer はffmpegを使ってV4L2デバイスからMJPEGストリームを取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
	logger     *slog.Logger
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
		logger:     slog.Default().With("device", devicePath),
	}
}

// args はffmpegの引数を組み立てる。0の項目はデバイスの既定値に任せる
func (c *V4L2Capturer) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if c.width > 0 && c.height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.width, c.height))
	}
	if c.fps > 0 {
		args = append(args, "-r", strconv.Itoa(c.fps))
	}
	return append(args,
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

// StartStream は連続キャプチャを開始する
//
// JPEGフレームはframeChanに、致命的なエラーはerrorChanに送られる。
// どちらもctxがキャンセルされると送信をやめる。
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	runFFmpeg(ctx, c.args(), c.logger, frameChan, errorChan)
}

// runFFmpeg はffmpegを起動し、標準出力のMJPEGをフレームごとに送る
func runFFmpeg(ctx context.Context, args []string, logger *slog.Logger, frameChan chan<- []byte, errorChan chan<- error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	report := func(err error) {
		select {
		case errorChan <- err:
		case <-ctx.Done():
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		report(fmt.Errorf("stdoutパイプの作成に失敗: %w", err))
		return
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		report(fmt.Errorf("stderrパイプの作成に失敗: %w", err))
		return
	}

	if err := cmd.Start(); err != nil {
		report(fmt.Errorf("ffmpegの起動に失敗: %w", err))
		return
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug("ffmpeg", "line", scanner.Text())
		}
	}()

	go func() {
		defer func() {
			// Waitはパイプの読み取りが終わってから呼ぶ
			if ctx.Err() == nil {
				_, _ = io.Copy(io.Discard, stdout)
			}
			<-stderrDone
			_ = cmd.Wait() // キャンセル時はkillされるためエラーは無視
		}()

		err := splitJPEG(stdout, func(data []byte) bool {
			select {
			case frameChan <- data:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		report(fmt.Errorf("フレーム読み取りエラー: %w", err))
	}()
}

// splitJPEG はストリームをJPEGのSOI/EOIマーカーで分割し、1フレームずつemitに渡す
//
// emitがfalseを返すと読み取りを中断する。ストリーム終端ではnilを返す。
func splitJPEG(r io.Reader, emit func([]byte) bool) error {
	buffer := make([]byte, 64*1024)
	var pending bytes.Buffer

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			pending.Write(buffer[:n])

			for {
				data := pending.Bytes()

				startIdx := bytes.Index(data, jpegStart)
				if startIdx == -1 {
					// マーカーの1バイト目が末尾に来ている場合に備えて1バイト残す
					if len(data) > 0 && data[len(data)-1] == 0xFF {
						pending.Reset()
						pending.WriteByte(0xFF)
					} else {
						pending.Reset()
					}
					break
				}

				endIdx := bytes.Index(data[startIdx+2:], jpegEnd)
				if endIdx == -1 {
					// 完全なフレームがまだない
					if startIdx > 0 {
						rest := append([]byte(nil), data[startIdx:]...)
						pending.Reset()
						pending.Write(rest)
					}
					break
				}

				endIdx += startIdx + 2 + len(jpegEnd)
				frameData := make([]byte, endIdx-startIdx)
				copy(frameData, data[startIdx:endIdx])

				rest := append([]byte(nil), data[endIdx:]...)
				pending.Reset()
				pending.Write(rest)

				if !emit(frameData) {
					return nil
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// StreamCapturer はJPEGフレームを連続して送るキャプチャ
type StreamCapturer interface {
	StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error)
}

// streamDevice はキャプチャのストリームからフレームを返すDevice
type streamDevice struct {
	cancel  context.CancelFunc
	frames  chan []byte
	errs    chan error
	pending []byte // 開くときに受け取った最初のフレーム

	closeOnce sync.Once
}

// openV4L2Device はV4L2デバイスを開き、最初のフレームが届くまで待つ
func openV4L2Device(ctx context.Context, src Source) (Device, error) {
	path := src.DevicePath()
	if !IsDeviceAvailable(path) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, path)
	}
	return openStreamDevice(ctx, path, NewV4L2Capturer(path, src.Width, src.Height, src.FPS))
}

// openStreamDevice はストリームを開始し、最初のフレームが届くまで待つ
func openStreamDevice(ctx context.Context, name string, capturer StreamCapturer) (Device, error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	d := &streamDevice{
		cancel: cancel,
		frames: make(chan []byte, 1),
		errs:   make(chan error, 1),
	}

	capturer.StartStream(streamCtx, d.frames, d.errs)

	// 開けたかどうかは最初のフレームで判断する
	select {
	case data := <-d.frames:
		d.pending = data
		return d, nil
	case err := <-d.errs:
		cancel()
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, name, err)
	case <-ctx.Done():
		cancel()
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, name, ctx.Err())
	}
}

// Read は次のJPEGフレームをデコードして返す
func (d *streamDevice) Read(ctx context.Context) (*frame.Frame, error) {
	if data := d.pending; data != nil {
		d.pending = nil
		return decodeJPEG(data)
	}

	select {
	case data := <-d.frames:
		return decodeJPEG(data)
	case err := <-d.errs:
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, ctx.Err())
	}
}

func decodeJPEG(data []byte) (*frame.Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: JPEG画像のデコードに失敗: %v", ErrNoFrame, err)
	}
	return frame.FromImage(img), nil
}

// Close はストリームを停止する
func (d *streamDevice) Close() error {
	d.closeOnce.Do(d.cancel)
	return nil
}
