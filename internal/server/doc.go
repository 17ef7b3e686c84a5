// Package server は、検出セッションをHTTPとWebSocketで公開します。
//
// ルーティングはOpenAPI定義から生成したServerInterfaceに従い、
// 必要に応じてkin-openapiでリクエストを検証します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - 検出の開始・停止と1フレーム分の結果の返却
//   - WebSocketによる検出結果の連続配信
//   - 埋め込みビューアの配信
//
// 検出の失敗はHTTPエラーではなくレスポンスのstatusで返します。
// HTTPのエラーステータスはパラメータ不正とカメラを開けない場合に限ります。
package server
