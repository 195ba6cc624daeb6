package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/itmsclient/internal/apiclient"
	"github.com/hitoshi/itmsclient/internal/config"
	"github.com/hitoshi/itmsclient/internal/identity"
	"github.com/hitoshi/itmsclient/internal/logger"
	"github.com/hitoshi/itmsclient/internal/metrics"
	"github.com/hitoshi/itmsclient/internal/session"
)

// App は全依存関係をワイヤリングしたCLIアプリケーション本体。
type App struct {
	cfg      *config.Config
	api      *apiclient.Client
	session  *session.Service
	resolver *identity.Resolver
	registry *prometheus.Registry
	out      io.Writer
}

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("ITMS_LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// New はConfigから全依存関係をワイヤリングしたAppを構築する。
// コマンドの出力はoutに書き込む（ログは標準エラーに分離される）。
func New(cfg *config.Config, out io.Writer) *App {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	api := apiclient.NewClient(httpClient, slog.Default(), cfg.BaseURL)
	if cfg.UserAgent != "" {
		api.SetUserAgent(cfg.UserAgent)
	}

	// メトリクスは専用レジストリに登録する
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	api.SetRecorder(collector)

	sess := session.New(api, slog.Default())
	resolver := identity.New(api, slog.Default())
	resolver.SetRecorder(collector)

	return &App{
		cfg:      cfg,
		api:      api,
		session:  sess,
		resolver: resolver,
		registry: registry,
		out:      out,
	}
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するコマンドを実行する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		baseURL := os.Getenv("ITMS_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:8080"
		}
		return runHealthcheck(baseURL)
	}

	cfg, err := Init(nil)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting itms client",
		slog.String("command", string(cmd)),
		slog.String("base_url", cfg.BaseURL),
	)

	app := New(cfg, w)

	if cfg.MetricsPort > 0 {
		app.serveMetrics(cfg.MetricsPort)
	}

	// Ctrl-Cで進行中のリクエストをキャンセルする
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandRegister:
		return app.runRegister(ctx, args[1:])
	case CommandProjects:
		return app.runProjects(ctx)
	case CommandIssues:
		return app.runIssues(ctx, args[1:])
	case CommandIssue:
		return app.runIssue(ctx, args[1:])
	default:
		return app.runWhoami(ctx)
	}
}

// serveMetrics はPrometheusメトリクスエンドポイントをバックグラウンドで公開する。
func (a *App) serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))

	go func() {
		addr := ":" + strconv.Itoa(port)
		slog.Info("metrics endpoint starting", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics endpoint error", slog.String("error", err.Error()))
		}
	}()
}

// login は設定された資格情報でセッションを確立する。
func (a *App) login(ctx context.Context) error {
	if a.cfg.Identifier == "" || a.cfg.Password == "" {
		return fmt.Errorf("ITMS_IDENTIFIER and ITMS_PASSWORD must be set for this command")
	}
	if err := a.session.Login(ctx, a.cfg.Identifier, a.cfg.Password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

// runWhoami はログイン中のユーザー情報を表示する。
func (a *App) runWhoami(ctx context.Context) error {
	if err := a.login(ctx); err != nil {
		return err
	}

	snap := a.session.Snapshot()
	if snap.Status != session.StatusAuthenticated || snap.User == nil {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}

	// 自分自身もアイデンティティキャッシュに載せる
	a.resolver.SeedFromUser(snap.User)

	u := snap.User
	fmt.Fprintf(a.out, "%s %s (%s) <%s>\n", u.FirstName, u.LastName, u.Username, u.Email)
	return nil
}

// runRegister は新規ユーザーを登録し、そのままログインする。
func (a *App) runRegister(ctx context.Context, args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("usage: register <email> <username> <first_name> <last_name> <password>")
	}

	payload := apiclient.RegisterPayload{
		Email:     args[0],
		Username:  args[1],
		FirstName: args[2],
		LastName:  args[3],
		Password:  args[4],
	}
	if err := a.session.Register(ctx, payload); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	snap := a.session.Snapshot()
	if snap.User != nil {
		fmt.Fprintf(a.out, "Registered as %s %s (%s)\n",
			snap.User.FirstName, snap.User.LastName, snap.User.Username)
	}
	return nil
}

// runProjects は閲覧可能なプロジェクト一覧を表示する。
func (a *App) runProjects(ctx context.Context) error {
	if err := a.login(ctx); err != nil {
		return err
	}

	projects, err := a.api.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	for _, p := range projects {
		visibility := "private"
		if p.IsPublic {
			visibility = "public"
		}
		role := "-"
		if p.UserRole != nil {
			role = string(*p.UserRole)
		}
		fmt.Fprintf(a.out, "%d\t%s\t%s\t%s\t%s\n", p.ProjectID, p.ProjectKey, p.Name, visibility, role)
	}
	return nil
}

// runIssues はプロジェクトのIssue一覧を表示する。
// 表示前にメンバー一覧でアイデンティティキャッシュをシードし、
// 担当者名を追加リクエストなしで同期整形する。
func (a *App) runIssues(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: issues <project_id>")
	}
	projectID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid project id: %s", args[0])
	}

	if err := a.login(ctx); err != nil {
		return err
	}

	members, err := a.api.ListProjectMembers(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to list project members: %w", err)
	}
	a.resolver.SeedFromMembers(members)

	issues, err := a.api.ListProjectIssues(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to list issues: %w", err)
	}

	for _, issue := range issues {
		fmt.Fprintf(a.out, "#%d\t[%s/%s]\t%s\t%s\n",
			issue.IssueNumber, issue.Status, issue.Priority, issue.Title,
			a.resolver.FormatSync(issue.AssigneeID))
	}
	return nil
}

// runIssue はIssueの詳細とコメントを表示する。
// 担当者・報告者・コメント作者はResolve経由でオンデマンド解決する。
func (a *App) runIssue(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: issue <issue_id>")
	}
	issueID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid issue id: %s", args[0])
	}

	if err := a.login(ctx); err != nil {
		return err
	}

	issue, err := a.api.GetIssue(ctx, issueID)
	if err != nil {
		return fmt.Errorf("failed to get issue: %w", err)
	}

	// 表示に使うユーザーをキャッシュに解決しておく（失敗はプレースホルダにフォールバック）
	a.resolveQuiet(ctx, &issue.ReporterID)
	a.resolveQuiet(ctx, issue.AssigneeID)

	fmt.Fprintf(a.out, "#%d %s\n", issue.IssueNumber, issue.Title)
	fmt.Fprintf(a.out, "Type: %s  Status: %s  Priority: %s\n", issue.Type, issue.Status, issue.Priority)
	fmt.Fprintf(a.out, "Reporter: %s\n", a.resolver.FormatSync(&issue.ReporterID))
	fmt.Fprintf(a.out, "Assignee: %s\n", a.resolver.FormatSync(issue.AssigneeID))
	if issue.DueDate != nil {
		fmt.Fprintf(a.out, "Due: %s\n", *issue.DueDate)
	}
	if len(issue.Labels) > 0 {
		fmt.Fprint(a.out, "Labels:")
		for _, l := range issue.Labels {
			fmt.Fprintf(a.out, " %s", l.Name)
		}
		fmt.Fprintln(a.out)
	}
	if issue.Description != nil && *issue.Description != "" {
		fmt.Fprintf(a.out, "\n%s\n", *issue.Description)
	}

	comments, err := a.api.ListIssueComments(ctx, issueID)
	if err != nil {
		return fmt.Errorf("failed to list comments: %w", err)
	}

	if len(comments) > 0 {
		fmt.Fprintf(a.out, "\nComments (%d):\n", len(comments))
		for _, c := range comments {
			a.resolveQuiet(ctx, c.AuthorID)
			fmt.Fprintf(a.out, "- %s [%s]: %s\n",
				a.resolver.FormatSync(c.AuthorID), c.CreatedAt, c.Content)
		}
	}
	return nil
}

// resolveQuiet はユーザーIDをキャッシュに解決する。
// 失敗しても表示はFormatSyncのプレースホルダで継続できるため、ログに留める。
func (a *App) resolveQuiet(ctx context.Context, userID *int64) {
	if userID == nil {
		return
	}
	if _, err := a.resolver.Resolve(ctx, *userID); err != nil {
		slog.Debug("identity resolution failed",
			slog.Int64("user_id", *userID),
			slog.String("error", err.Error()),
		)
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	url := fmt.Sprintf("%s/health", baseURL)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
