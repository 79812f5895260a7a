// Package proto contains the opcodes and enum values of every
// interface in the embedded protocol descriptions.
//
// Requests are named <Interface>Req<Name>, events <Interface>Ev<Name>
// and enum entries <Interface><Enum><Entry>.
package proto

//go:generate go run deedles.dev/wlc/cmd/wlgen -pkg proto -out proto.go ../protocol/xml/cursor-shape-v1.xml ../protocol/xml/ewc-debug-v1.xml ../protocol/xml/linux-dmabuf-v1.xml ../protocol/xml/single-pixel-buffer-v1.xml ../protocol/xml/wayland.xml ../protocol/xml/xdg-shell.xml
