package generated

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen --config=oapi-codegen.yaml openapi.yaml

//go:embed openapi.yaml
var openapiSpec []byte

// GetSwagger はOpenAPI定義を読み込み、検証して返す
//
// 呼び出しごとに新しいドキュメントを返すので、呼び出し側で変更してよい。
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("OpenAPI定義の読み込みに失敗: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("OpenAPI定義が不正です: %w", err)
	}
	return doc, nil
}

// RawSpec は埋め込まれたOpenAPI定義をそのまま返す
func RawSpec() []byte {
	return openapiSpec
}
