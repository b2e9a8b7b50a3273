package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bracketflow/conf"
	"bracketflow/internal/dao/query"
	"bracketflow/internal/dedup"
	"bracketflow/internal/exchange"
	"bracketflow/internal/executor"
	"bracketflow/internal/handler/execution"
	whandler "bracketflow/internal/handler/webhook"
	"bracketflow/internal/ingest"
	"bracketflow/internal/metrics"
	"bracketflow/internal/model"
	"bracketflow/internal/poller"
	"bracketflow/internal/report"
	"bracketflow/internal/router"
	"bracketflow/internal/sizing"
	"bracketflow/internal/webhook"
	"bracketflow/pkg/cache"
	"bracketflow/pkg/kafka"
	"bracketflow/pkg/logger"
	"bracketflow/pkg/mail"
	"bracketflow/pkg/push/apns"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 单个 sink 的上报超时
const sinkTimeout = 5 * time.Second

// App 进程内所有组件，Start 之后由 Close 统一释放
type App struct {
	poller   *poller.Poller
	ingest   *ingest.Consumer
	hub      *report.Hub
	producer kafka.ProducerService
	consumer kafka.ConsumerService
	router   Router
	mode     string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func InitApp(cfg *conf.Config, db *gorm.DB) (*App, error) {
	if err := db.AutoMigrate(&model.Signal{}, &model.ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	signalDao := query.NewSignalDao(db)
	executionDao := query.NewExecutionDao(db)

	app := &App{}
	gw := app.gateway(cfg)

	guard := dedup.NewGuard(cfg.Trade.Cooldown)
	exec, err := executor.NewBracketExecutor(gw,
		sizing.NewSizer(cfg.Trade.DefaultPrecision, cfg.Trade.AbsoluteMinQty),
		guard,
		executor.Config{
			NotionalUSD: cfg.Trade.NotionalUSD,
			MinBalance:  cfg.Trade.MinBalance,
			QuoteAsset:  cfg.Trade.QuoteAsset,
			NodeID:      1,
		})
	if err != nil {
		return nil, err
	}

	// 执行报告分发
	app.hub = report.NewHub(cfg.Report.MaxStreamClients)
	fanout := report.NewFanout(sinkTimeout, metrics.Sink{}, report.NewDaoSink(executionDao), app.hub)
	if cfg.Report.JSONFile != "" {
		fanout.Add(report.NewFileSink(cfg.Report.JSONFile))
	}
	if cache.Enabled() && (cfg.Report.RedisList != "" || cfg.Report.RedisChannel != "") {
		fanout.Add(report.NewRedisSink(cache.GetRedisClient(), cfg.Report.RedisList, cfg.Report.RedisChannel, cfg.Report.RedisKeep))
	}
	if cfg.Kafka.Broker != "" {
		if cfg.Report.KafkaTopic != "" {
			app.producer = kafka.NewKafkaProducer(cfg.Kafka.Broker)
			fanout.Add(report.NewKafkaSink(app.producer, cfg.Report.KafkaTopic))
		}
		if cfg.Kafka.SignalTopic != "" {
			app.consumer = kafka.NewKafkaConsumer(cfg.Kafka.Broker)
			app.ingest = ingest.NewConsumer(app.consumer, signalDao, cfg.Kafka.SignalTopic, cfg.Kafka.GroupID)
		}
	}
	if alerts := newAlertSink(cfg.Alert); alerts != nil {
		fanout.Add(alerts)
	}
	exec.SetReporter(fanout)
	logger.Infof("[App] mode=%s sinks=%v", app.mode, fanout.Sinks())

	last := poller.NewLastExecuted()
	app.poller = poller.NewPoller(signalDao, exec, last, poller.Config{
		Interval:       cfg.Trade.PollInterval,
		BracketTimeout: cfg.Trade.BracketTimeout,
	})

	wh := webhook.NewWebhookHandler(cfg.Webhook.Secret, signalDao)
	if !wh.Enabled() {
		logger.Warnf("[App] webhook secret empty, /webhook disabled")
	}
	eh := execution.NewHandler(executionDao, signalDao, last, guard, app.hub)
	eh.SetInfo(app.mode, fanout.Sinks())
	app.router = router.NewApiRouter(whandler.NewHandler(wh), eh)
	return app, nil
}

// gateway 模拟模式不连接交易所
func (a *App) gateway(cfg *conf.Config) exchange.Gateway {
	if cfg.Binance.Simulated {
		a.mode = "simulated"
		sim := exchange.NewSimulatedExchange()
		sim.SetBalance(cfg.Trade.QuoteAsset, cfg.Binance.SimulatedBalance)
		sim.SetFallback(model.InstrumentSpec{
			HasPrecision:      true,
			QuantityPrecision: cfg.Trade.DefaultPrecision,
			MinQty:            decimal.NewFromFloat(cfg.Trade.AbsoluteMinQty),
		})
		return sim
	}
	a.mode = "live"
	if cfg.Binance.Testnet {
		a.mode = "testnet"
	}
	return exchange.NewBinanceGateway(cfg.Binance)
}

func newAlertSink(cfg conf.AlertConfig) *report.AlertSink {
	var mailer report.MailSender
	if m := mail.NewMailer(cfg.Email); m.Enabled() {
		mailer = m
	}
	var pusher report.Pusher
	if cfg.Apns.KeyFile != "" && len(cfg.Apns.DeviceTokens) > 0 {
		p, err := apns.NewTokenApns(cfg.Apns)
		if err != nil {
			logger.Warnf("[App] apns disabled: %v", err)
		} else {
			pusher = p
		}
	}
	if mailer == nil && pusher == nil {
		return nil
	}
	return report.NewAlertSink(mailer, pusher)
}

func (a *App) Router() Router {
	return a.router
}

func (a *App) Mode() string {
	return a.mode
}

// Start 启动轮询和消息消费
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.poller.Start(ctx)
	if a.ingest != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.ingest.Run(ctx); err != nil {
				logger.Errorf("[App] ingest stopped: %v", err)
			}
		}()
	}
}

// Close 先停轮询，等待进行中的括号单完成，再释放其余资源
func (a *App) Close() {
	a.poller.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if a.consumer != nil {
		a.consumer.Close()
	}
	if a.producer != nil {
		a.producer.Close()
	}
	a.hub.Close()
}
