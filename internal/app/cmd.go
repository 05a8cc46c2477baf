package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/farmchef/internal/seed"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はストアのスキーマを準備することを示す。
	CommandMigrate Command = "migrate"
	// CommandSeed はデモデータを投入することを示す。
	CommandSeed Command = "seed"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はfarmchefのルートコマンドを構築する。
// サブコマンドなしで起動した場合はserveとして動作する。
// ログはwに出力する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "farmchef",
		Short:         "Farm to Chef B2B directory API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(w, CommandServe, runServe)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   string(CommandServe),
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(w, CommandServe, runServe)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   string(CommandMigrate),
		Short: "Apply Postgres migrations or create MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(w, CommandMigrate, runMigrate)
		},
	})

	var seedOpts seed.Options
	seedCmd := &cobra.Command{
		Use:   string(CommandSeed),
		Short: "Create demo profiles and posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(w, CommandSeed, seedRunner(seedOpts))
		},
	}
	seedCmd.Flags().IntVar(&seedOpts.Profiles, "profiles", 8, "number of profiles to create")
	seedCmd.Flags().IntVar(&seedOpts.PostsPerProfile, "posts", 3, "number of posts per profile")
	seedCmd.Flags().Int64Var(&seedOpts.RandSeed, "rand-seed", 0, "random seed for generated content")
	root.AddCommand(seedCmd)

	var port string
	healthCmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Probe the local /health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 軽量サブコマンドのため、フル初期化をスキップする
			return runHealthcheck(port)
		},
	}
	healthCmd.Flags().StringVar(&port, "port", defaultHealthcheckPort(), "server port to check")
	root.AddCommand(healthCmd)

	return root
}

// defaultHealthcheckPort はSERVER_PORT環境変数、未設定なら8080を返す。
func defaultHealthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}
