package main

import (
	"fmt"

	"github.com/static-hub/static-hub/internal/version"
)

// printVersion 输出版本、提交与运行时平台。
func printVersion() {
	fmt.Fprintf(stdOut, "%s\n%s\n", version.Full(), version.Runtime())
}
