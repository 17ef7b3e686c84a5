package camera

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DriverType はデバイスドライバの種類
type DriverType string

const (
	// DriverV4L2 はffmpeg経由でV4L2デバイスから取得する
	DriverV4L2 DriverType = "v4l2"
	// DriverImage は静止画ファイルを映像として繰り返し返す
	DriverImage DriverType = "image"
	// DriverGoCV はOpenCVのVideoCaptureで取得する（gocvビルドタグが必要）
	DriverGoCV DriverType = "gocv"
	// DriverX11 はffmpegのx11grabで画面を取得する
	DriverX11 DriverType = "x11"
)

// Opener はデバイスを開く関数の型
type Opener func(ctx context.Context, src Source) (Device, error)

// DeviceFactory はドライバ名からデバイスを開くファクトリー
type DeviceFactory interface {
	Open(ctx context.Context, driver DriverType, src Source) (Device, error)
	SupportedDrivers() []DriverType
}

var (
	builtinMu      sync.Mutex
	builtinOpeners = map[DriverType]Opener{
		DriverV4L2:  openV4L2Device,
		DriverImage: openImageDevice,
		DriverX11:   openX11Device,
	}
)

// registerBuiltin はビルドタグ付きのドライバを登録する
func registerBuiltin(driver DriverType, opener Opener) {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	builtinOpeners[driver] = opener
}

// DefaultDeviceFactory は標準実装
type DefaultDeviceFactory struct {
	mu      sync.RWMutex
	openers map[DriverType]Opener
}

// NewDeviceFactory は組み込みドライバを登録したファクトリーを作成する
func NewDeviceFactory() *DefaultDeviceFactory {
	f := &DefaultDeviceFactory{openers: make(map[DriverType]Opener)}

	builtinMu.Lock()
	defer builtinMu.Unlock()
	for driver, opener := range builtinOpeners {
		f.openers[driver] = opener
	}
	return f
}

// Register はドライバを登録する。同名のドライバは上書きする
func (f *DefaultDeviceFactory) Register(driver DriverType, opener Opener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openers[driver] = opener
}

// Open はデバイスを開く
func (f *DefaultDeviceFactory) Open(ctx context.Context, driver DriverType, src Source) (Device, error) {
	f.mu.RLock()
	opener, exists := f.openers[driver]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: サポートされていないドライバ: %s", ErrDeviceUnavailable, driver)
	}
	return opener(ctx, src)
}

// SupportedDrivers は登録済みのドライバ一覧を返す
func (f *DefaultDeviceFactory) SupportedDrivers() []DriverType {
	f.mu.RLock()
	defer f.mu.RUnlock()

	drivers := make([]DriverType, 0, len(f.openers))
	for driver := range f.openers {
		drivers = append(drivers, driver)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i] < drivers[j] })
	return drivers
}

// DeviceKey は排他制御に使うデバイスの識別子を返す
func DeviceKey(driver DriverType, src Source) string {
	switch driver {
	case DriverImage:
		return string(driver) + ":" + src.Path
	case DriverX11:
		return string(driver) + ":" + x11Display(src)
	default:
		// v4l2 と gocv は同じ物理カメラを指す
		if src.Path != "" {
			return "video:" + src.Path
		}
		return fmt.Sprintf("video:/dev/video%d", src.Index)
	}
}
