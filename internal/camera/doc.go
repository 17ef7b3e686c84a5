// Package camera カメラデバイスの保持と検出サイクルを担う
//
// # 責務
// - カメラデバイスを開き、1つのセッションだけが使えるよう確保する
// - フレームの取得、支配色の検出、JPEGエンコードを1サイクルとして実行する
// - V4L2デバイスの検出と実名取得
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラ映像から中央の支配色をポーリングで取得したい
// - 検出の開始・停止を実行時に切り替えたい
// - カメラがない環境で静止画を映像の代わりに使いたい
//
// # 仕様
// - Session: 状態遷移 uninitialized -> open -> closed（再オープン可能）
// - ClaimRegistry: デバイス単位の排他制御
// - DeviceFactory: ドライバ名からデバイスを開く（v4l2, image, gocv, x11）
// - V4L2Capturer / X11Capturer: ffmpeg経由でMJPEGストリームを取得
// - Discovery: /dev/video* の検出
// - 停止は読み取り待ちのサイクルをキャンセルしてから行う
//
// # 前提要件
//   - ffmpeg: v4l2ドライバとx11ドライバでの画像キャプチャに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//     Red Hat/Fedora: sudo dnf install ffmpeg
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - xdpyinfo: x11ドライバでディスプレイの確認に使用
//   - OpenCV: gocvドライバを使う場合のみ。-tags gocv でビルドする
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
