// Package version holds build metadata injected through -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Name 是二进制与诊断接口使用的产品名。
const Name = "static-hub"

// Version/Commit 在构建时通过 -ldflags "-X" 注入。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full 返回 "static-hub <version> (<commit>)"。
func Full() string {
	return fmt.Sprintf("%s %s (%s)", Name, Version, Commit)
}

// Runtime 附带 Go 版本与平台，供 version 子命令输出。
func Runtime() string {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
