package app

// Command はCLIのサブコマンドを表す。
type Command string

const (
	// CommandWhoami はログイン中のユーザー情報を表示することを示す。
	CommandWhoami Command = "whoami"
	// CommandRegister は新規ユーザーを登録してログインすることを示す。
	CommandRegister Command = "register"
	// CommandProjects は閲覧可能なプロジェクト一覧を表示することを示す。
	CommandProjects Command = "projects"
	// CommandIssues はプロジェクトのIssue一覧を表示することを示す。
	CommandIssues Command = "issues"
	// CommandIssue はIssueの詳細とコメントを表示することを示す。
	CommandIssue Command = "issue"
	// CommandHealthcheck はAPIサーバーの疎通確認を行うことを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandWhoamiを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandWhoami
	}

	switch args[0] {
	case "whoami":
		return CommandWhoami
	case "register":
		return CommandRegister
	case "projects":
		return CommandProjects
	case "issues":
		return CommandIssues
	case "issue":
		return CommandIssue
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandWhoami
	}
}
