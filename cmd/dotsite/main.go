// Command dotsite はコミュニティサイトのWebサーバーとバックグラウンドワーカーを起動する。
//
// サブコマンド: serve (デフォルト), worker, migrate, healthcheck
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/dotsite/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dotsite: %v\n", err)
		os.Exit(1)
	}
}
