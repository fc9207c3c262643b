// Package main 启动 yukumo 命令行.
package main

import (
	"fmt"
	"os"

	"github.com/yeisme/yukumo/pkg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
