package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssugameworks/ratedvc/api"
	"github.com/ssugameworks/ratedvc/bot"
	"github.com/ssugameworks/ratedvc/cache"
	"github.com/ssugameworks/ratedvc/config"
	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/events"
	"github.com/ssugameworks/ratedvc/health"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/rating"
	"github.com/ssugameworks/ratedvc/scheduler"
	"github.com/ssugameworks/ratedvc/sheets"
	"github.com/ssugameworks/ratedvc/storage"
	"github.com/ssugameworks/ratedvc/telemetry"
	"github.com/ssugameworks/ratedvc/utils"
	"github.com/ssugameworks/ratedvc/vc"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type Application struct {
	config *config.Config

	judge      *api.JudgeClient
	codeforces *api.CodeforcesClient

	snapshots *cache.RedisSnapshotStore
	contests  *cache.ContestCache
	problems  *cache.ProblemCache
	ranklists *cache.RanklistCache

	store     interfaces.VCStore
	identity  interfaces.IdentityLookup
	notifiers []io.Closer
	notifier  interfaces.Notifier

	scheduler *scheduler.Scheduler
	vcs       *vc.Service
	metrics   *telemetry.MetricsClient
	health    *health.Server

	stopWorker  context.CancelFunc
	stopMetrics context.CancelFunc
}

func New() (*Application, error) {
	app := &Application{}

	if err := app.loadConfig(); err != nil {
		return nil, err
	}

	if err := app.initializeDependencies(); err != nil {
		app.closeAll()
		return nil, err
	}

	app.initializeScheduler()
	app.initializeHealth()

	return app, nil
}

func (app *Application) loadConfig() error {
	app.config = config.Load()
	if err := app.config.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	configureLogger(app.config.Logging, app.config.IsDebugMode())
	return nil
}

// configureLogger 설정에 맞춰 전역 로거의 레벨과 출력 형식을 바꿉니다
func configureLogger(cfg config.LoggingConfig, debug bool) {
	var out io.Writer = os.Stdout
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: constants.DateTimeFormat}
	}
	level := utils.ParseLogLevel(cfg.Level)
	if debug {
		level = utils.DEBUG
	}
	utils.SetGlobalLogger(utils.NewLoggerWithWriter(out, level))
}

func (app *Application) initializeDependencies() error {
	ctx := context.Background()
	cfg := app.config

	// 저지 API와 Codeforces는 한도가 서로 달라 limiter를 따로 둡니다
	judgeCaller := api.NewRateLimitedClient(api.ClientOptions{
		BaseURL: cfg.Judge.BaseURL,
		APIKey:  cfg.Judge.APIKey,
		Timeout: cfg.Judge.Timeout,
		Limiter: api.NewWindowLimiter(cfg.Judge.CallsPerWindow, cfg.Judge.Window),
		Policy:  api.JudgeRetryPolicy(cfg.Judge.MaxRetries, cfg.Judge.RetryDelay),
	})
	app.judge = api.NewJudgeClient(judgeCaller, api.NewPagedFetcher(judgeCaller, cfg.Judge.PageSize), cfg.Judge.Resource)

	cfCaller := api.NewRateLimitedClient(api.ClientOptions{
		BaseURL:  cfg.Codeforces.BaseURL,
		Timeout:  cfg.Judge.Timeout,
		Limiter:  api.NewWindowLimiter(cfg.Codeforces.CallsPerWindow, cfg.Codeforces.Window),
		Policy:   api.JudgeRetryPolicy(cfg.Judge.MaxRetries, cfg.Judge.RetryDelay),
		Classify: api.ClassifyCodeforcesStatus,
	})
	app.codeforces = api.NewCodeforcesClient(cfCaller)

	// Redis 스냅샷 저장소 (선택)
	var snapshotStore cache.SnapshotStore
	if cfg.RedisEnabled() {
		snapshots, err := cache.NewRedisSnapshotStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			utils.Warn("Redis unavailable, contest snapshots will not be persisted: %v", err)
		} else {
			app.snapshots = snapshots
			snapshotStore = snapshots
		}
	}

	app.contests = cache.NewContestCache(app.judge, snapshotStore, cfg.Cache.ContestTTL)
	app.problems = cache.NewProblemCache(app.judge, cfg.Cache.ProblemTTL)
	app.ranklists = cache.NewRanklistCache(app.contests, app.judge)

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.store = store

	identity, err := app.buildIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize roster: %w", err)
	}
	app.identity = identity

	if err := app.buildNotifier(); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		app.metrics = telemetry.NewMetricsClient(ctx, cfg.Telemetry.ProjectID, cfg.Storage.FirebaseCreds)
	}

	app.vcs = vc.NewService(app.store, app.contests, app.ranklists, app.identity, app.codeforces, cfg.Scheduler)
	return nil
}

// buildIdentity 명단 시트가 설정되어 있으면 Sheets 명단을, 아니면 빈 명단을 사용합니다
func (app *Application) buildIdentity(ctx context.Context) (interfaces.IdentityLookup, error) {
	cfg := app.config.Roster
	if cfg.SpreadsheetID == "" {
		utils.Warn("ROSTER_SPREADSHEET_ID is not set; no participant handle can be resolved")
		return sheets.NewRoster(), nil
	}
	client, err := sheets.NewRosterClient(ctx, app.config.Storage.FirebaseCreds, cfg.SpreadsheetID, cfg.Range)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// buildNotifier 설정된 알림 채널을 모두 묶습니다. 하나도 없으면 notifier는 nil
func (app *Application) buildNotifier() error {
	var targets []interfaces.Notifier

	if app.config.DiscordEnabled() {
		discord, err := bot.NewDiscordNotifier(app.config.Discord.Token, app.config.Discord.ChannelID)
		if err != nil {
			return fmt.Errorf("디스코드 세션 생성 실패: %w", err)
		}
		targets = append(targets, discord)
		app.notifiers = append(app.notifiers, discord)
	}

	if app.config.KafkaEnabled() {
		publisher := events.NewKafkaPublisher(app.config.Kafka.Brokers, app.config.Kafka.Topic)
		targets = append(targets, publisher)
		app.notifiers = append(app.notifiers, publisher)
	}

	if len(targets) == 0 {
		utils.Info("No notifier configured; settlement results are only logged")
		return nil
	}
	app.notifier = events.NewFanout(targets...)
	return nil
}

func (app *Application) initializeScheduler() {
	deps := scheduler.Dependencies{
		Store:       app.store,
		Identity:    app.identity,
		Submissions: app.codeforces,
		Ranklists:   app.ranklists,
		Engine:      rating.NewEngine(),
		OnTick:      app.reportTick,
	}
	if app.notifier != nil {
		deps.Notifier = app.notifier
	}
	app.scheduler = scheduler.NewScheduler(deps, app.config.Scheduler)
}

// reportTick 정산 결과를 Cloud Monitoring으로 보냅니다
func (app *Application) reportTick(report *scheduler.TickReport) {
	if app.metrics == nil || !app.metrics.Enabled() {
		return
	}
	outcomes := map[string]int{
		string(scheduler.OutcomeSettled):  report.Count(scheduler.OutcomeSettled),
		string(scheduler.OutcomeDeferred): report.Count(scheduler.OutcomeDeferred),
		string(scheduler.OutcomeSkipped):  report.Count(scheduler.OutcomeSkipped),
		string(scheduler.OutcomeFailed):   report.Count(scheduler.OutcomeFailed),
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.ExternalCallTimeout)
	defer cancel()
	app.metrics.SendSettlementMetric(ctx, outcomes, report.Duration)
}

func (app *Application) initializeHealth() {
	app.health = health.NewServer(app.config.HTTP.Port, app.healthChecks()...)
}

// healthChecks 연결을 유지하는 외부 의존성의 확인 항목
func (app *Application) healthChecks() []health.Check {
	var checks []health.Check
	if p, ok := app.store.(pinger); ok {
		checks = append(checks, health.Check{Name: app.config.Storage.Backend, Fn: p.Ping})
	}
	if app.snapshots != nil {
		checks = append(checks, health.Check{Name: "redis", Fn: app.snapshots.Ping})
	}
	return checks
}

func (app *Application) Start() error {
	app.health.Start()

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	// 캐시 워밍업 실패는 치명적이지 않습니다. 갱신 워커가 다시 시도합니다
	if err := app.contests.Init(ctx); err != nil {
		utils.Warn("Contest cache warmup failed: %v", err)
	}
	if err := app.problems.Refresh(ctx, false); err != nil {
		utils.Warn("Problem cache warmup failed: %v", err)
	}

	app.stopWorker = cache.StartRefreshWorker(app.config.Cache.MonitorInterval, app.ranklists, app.contests, app.problems)
	app.startMetricsLoop()

	if app.config.Scheduler.Enabled {
		app.scheduler.Start()
	} else {
		utils.Warn("SETTLEMENT_ENABLED=false; virtual contests will not be settled")
	}

	app.printStartupMessage()
	return nil
}

// startMetricsLoop 캐시 통계를 주기적으로 Cloud Monitoring에 보냅니다
func (app *Application) startMetricsLoop() {
	if app.metrics == nil || !app.metrics.Enabled() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	app.stopMetrics = cancel

	go func() {
		ticker := time.NewTicker(constants.CacheMetricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				app.pushCacheStats(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (app *Application) pushCacheStats(ctx context.Context) {
	for _, stats := range app.cacheStats() {
		app.metrics.SendCacheMetrics(ctx, stats.Name, stats.Entries, stats.Hits, stats.Misses, stats.HitRate())
	}
}

func (app *Application) cacheStats() []cache.CacheStats {
	return []cache.CacheStats{app.contests.Stats(), app.problems.Stats(), app.ranklists.Stats()}
}

func (app *Application) printStartupMessage() {
	utils.Info("Rated VC service v%s", constants.ServiceVersion)
	utils.Info("Storage backend: %s", app.config.Storage.Backend)
	if app.config.Scheduler.Enabled {
		utils.Info("%s Settlement runs every %s", constants.EmojiClock, utils.FormatDuration(app.config.Scheduler.Interval))
	}
}

// VCs VC 생성/취소 서비스
func (app *Application) VCs() *vc.Service {
	return app.vcs
}

func (app *Application) Run() error {
	if err := app.Start(); err != nil {
		return err
	}

	// 종료 신호 대기
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	return app.Stop()
}

// printCacheStats 캐시 통계를 출력합니다
func (app *Application) printCacheStats() {
	if app.contests == nil {
		return
	}
	for _, stats := range app.cacheStats() {
		utils.Info("%s %s cache: %d entries, hit rate %.1f%%", constants.EmojiStats, stats.Name, stats.Entries, stats.HitRate()*100)
	}
}

func (app *Application) Stop() error {
	utils.Info("🔄 서비스를 종료하는 중...")

	app.printCacheStats()

	// 진행 중인 정산 tick은 끝까지 기다립니다
	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.stopWorker != nil {
		app.stopWorker()
	}
	if app.stopMetrics != nil {
		app.stopMetrics()
	}

	if app.health != nil {
		ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := app.health.Shutdown(ctx); err != nil {
			utils.Warn("Health server shutdown failed: %v", err)
		}
	}

	app.closeAll()
	utils.Info("서비스가 정상적으로 종료되었습니다.")
	return nil
}

// closeAll 열린 연결을 모두 닫습니다
func (app *Application) closeAll() {
	for _, n := range app.notifiers {
		if err := n.Close(); err != nil {
			utils.Warn("Failed to close notifier: %v", err)
		}
	}
	app.notifiers = nil

	if app.metrics != nil {
		if err := app.metrics.Close(); err != nil {
			utils.Warn("Failed to close metrics client: %v", err)
		}
		app.metrics = nil
	}
	if app.snapshots != nil {
		if err := app.snapshots.Close(); err != nil {
			utils.Warn("Failed to close Redis: %v", err)
		}
		app.snapshots = nil
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			utils.Warn("Failed to close storage: %v", err)
		}
		app.store = nil
	}
}
