package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
)

// defaultDisplay はDISPLAYが未設定のときに使うX11ディスプレイ
const defaultDisplay = ":0"

// X11Capturer はffmpegのx11grabでX11画面をMJPEGストリームとして取得する
//
// カメラがない環境で、画面に映した色見本を検出させるのに使う。
type X11Capturer struct {
	display string
	width   int
	height  int
	fps     int
	logger  *slog.Logger
}

// NewX11Capturer は新しいX11Capturerを作成する
func NewX11Capturer(display string, width, height, fps int) *X11Capturer {
	return &X11Capturer{
		display: display,
		width:   width,
		height:  height,
		fps:     fps,
		logger:  slog.Default().With("display", display),
	}
}

// IsDisplayAvailable はX11ディスプレイが利用可能かチェックする
func (c *X11Capturer) IsDisplayAvailable(ctx context.Context) bool {
	// xdpyinfoコマンドでX11ディスプレイの利用可能性をチェック
	cmd := exec.CommandContext(ctx, "xdpyinfo", "-display", c.display)
	return cmd.Run() == nil
}

// args はffmpegの引数を組み立てる。サイズ未指定なら画面全体を取得する
func (c *X11Capturer) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "x11grab"}
	if c.width > 0 && c.height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.width, c.height))
	}
	if c.fps > 0 {
		args = append(args, "-r", strconv.Itoa(c.fps))
	}
	return append(args,
		"-i", c.display,
		"-vf", "format=yuv420p",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

// StartStream はX11画面キャプチャのストリームを開始する
func (c *X11Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	runFFmpeg(ctx, c.args(), c.logger, frameChan, errorChan)
}

// x11Display はSourceが指すディスプレイ名を返す
func x11Display(src Source) string {
	if src.Path != "" {
		return src.Path
	}
	if display := os.Getenv("DISPLAY"); display != "" {
		return display
	}
	return defaultDisplay
}

// openX11Device はX11画面を開き、最初のフレームが届くまで待つ
func openX11Device(ctx context.Context, src Source) (Device, error) {
	display := x11Display(src)
	capturer := NewX11Capturer(display, src.Width, src.Height, src.FPS)
	if !capturer.IsDisplayAvailable(ctx) {
		return nil, fmt.Errorf("%w: X11ディスプレイ %s", ErrDeviceUnavailable, display)
	}
	return openStreamDevice(ctx, display, capturer)
}
