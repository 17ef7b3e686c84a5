package camera

import (
	"context"
	"errors"
	"fmt"

	"irodori/internal/frame"
)

// State はキャプチャセッションの状態を表す
type State string

const (
	StateUninitialized State = "uninitialized" // 一度も開いていない
	StateOpen          State = "open"          // デバイスを保持している
	StateClosed        State = "closed"        // 解放済み（再度開ける）
)

// デバイス層のエラー
var (
	// ErrDeviceUnavailable はカメラデバイスを開けなかったことを表す
	ErrDeviceUnavailable = errors.New("カメラデバイスが利用できません")

	// ErrNoFrame はデバイスからフレームが得られなかったことを表す。次のポーリングで再試行できる
	ErrNoFrame = errors.New("フレームを取得できませんでした")

	// ErrNotRunning はセッションが検出中でないことを表す
	ErrNotRunning = errors.New("検出が開始されていません")
)

// Source は開くデバイスの指定
type Source struct {
	Index  int    // デバイス番号（/dev/video<Index>）
	Path   string // デバイスパスまたは画像ファイル。空ならIndexから決める
	Width  int    // 要求する幅
	Height int    // 要求する高さ
	FPS    int    // 要求するフレームレート
}

// DevicePath はV4L2デバイスのパスを返す
func (s Source) DevicePath() string {
	if s.Path != "" {
		return s.Path
	}
	return fmt.Sprintf("/dev/video%d", s.Index)
}

// Device は開いたカメラデバイスのハンドル
//
// 同じDeviceに対して同時にReadを呼んではならない。
type Device interface {
	// Read は次のフレームを返す。データがない場合はErrNoFrameを返す
	Read(ctx context.Context) (*frame.Frame, error)

	// Close はデバイスを解放する
	Close() error
}
