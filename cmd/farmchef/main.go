// Command farmchef はFarm to Chefディレクトリのサーバーと運用コマンドを提供する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/farmchef/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
