package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/jpeg"
)

// DefaultJPEGQuality は転送用JPEGの既定品質
const DefaultJPEGQuality = 80

// ErrEncoding はフレームを転送形式に圧縮できなかったことを表す
var ErrEncoding = errors.New("フレームのエンコードに失敗しました")

// EncodeJPEG はフレームをJPEGに圧縮する
func EncodeJPEG(f *Frame, quality int) ([]byte, error) {
	if f.Empty() {
		return nil, fmt.Errorf("%w: 空のフレームです", ErrEncoding)
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w: 無効な品質 %d", ErrEncoding, quality)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.ToRGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64 はフレームをJPEGに圧縮しbase64文字列で返す
func EncodeBase64(f *Frame, quality int) (string, error) {
	data, err := EncodeJPEG(f, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DataURI はbase64化したJPEGをdata URIとして埋め込める形にする
func DataURI(payload string) string {
	return "data:image/jpeg;base64," + payload
}
