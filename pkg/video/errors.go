package video

import "errors"

var (
	// ErrBadShape はポリゴンデータが壊れている場合のエラー
	ErrBadShape = errors.New("malformed shape data")

	// ErrRenderDepthExceeded は階層ポリゴンの入れ子が深すぎる場合のエラー
	ErrRenderDepthExceeded = errors.New("render depth exceeded")

	// ErrBadBitmap は背景ビットマップのサイズが不正な場合のエラー
	ErrBadBitmap = errors.New("malformed bitmap")
)
