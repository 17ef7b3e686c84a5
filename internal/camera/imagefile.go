package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"irodori/internal/frame"
)

// imageDevice は静止画を毎回複製して返すDevice
type imageDevice struct {
	mu     sync.Mutex
	base   *frame.Frame
	closed bool
}

// openImageDevice は画像ファイルを1回だけデコードする
func openImageDevice(_ context.Context, src Source) (Device, error) {
	if src.Path == "" {
		return nil, fmt.Errorf("%w: 画像ファイルのパスが指定されていません", ErrDeviceUnavailable)
	}

	file, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer func() {
		_ = file.Close()
	}()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: 画像のデコードに失敗 (%s): %v", ErrDeviceUnavailable, src.Path, err)
	}

	base := frame.FromImage(img)
	if base.Empty() {
		return nil, fmt.Errorf("%w: 空の画像です (%s, %s)", ErrDeviceUnavailable, src.Path, format)
	}

	return &imageDevice{base: base}, nil
}

// NewImageDevice はメモリ上のフレームを返し続けるDeviceを作成する
func NewImageDevice(f *frame.Frame) Device {
	return &imageDevice{base: f.Clone()}
}

// Read は元画像の複製を返す。枠線の描画が元画像に残らないようにするため
func (d *imageDevice) Read(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: デバイスは閉じられています", ErrNoFrame)
	}
	return d.base.Clone(), nil
}

// Close はデバイスを閉じる
func (d *imageDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
