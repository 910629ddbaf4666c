package utils

import (
	"context"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// BeginSubsegment はコンテキストにX-Rayセグメントがある場合のみサブセグメントを開始します
// 返り値の関数でサブセグメントを閉じます。セグメントがない場合は何もしません
func BeginSubsegment(ctx context.Context, name string) (context.Context, func(error)) {
	if xray.GetSegment(ctx) == nil {
		return ctx, func(error) {}
	}
	ctx, seg := xray.BeginSubsegment(ctx, name)
	if seg == nil {
		return ctx, func(error) {}
	}
	return ctx, seg.Close
}
