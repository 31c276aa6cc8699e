package app

// Command はdotsiteの起動モード（サブコマンド）。
type Command string

const (
	// CommandServe はWebサーバー。サブコマンド省略時もこれになる。
	CommandServe Command = "serve"
	// CommandWorker はイベント状態の更新とセッション削除を定期実行する。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルの/healthを叩いて終了する。distrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はos.Args[1:]の先頭からサブコマンドを決める。
// 未知の値はCommandServeとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
