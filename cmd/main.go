package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	api "bracketflow/cmd/bracketflow"
	"bracketflow/conf"
	"bracketflow/internal/middleware"
	"bracketflow/pkg/cache"
	"bracketflow/pkg/db"
	"bracketflow/pkg/logger"
	"bracketflow/pkg/secret"
)

/*
测试

BODY='{"pair":"BTCUSDT.P","setup_type":"LONG","entry":65000,"leverage":20,"stop_loss":63000,"take_profits":[66000,67000,68000,69000]}'
SECRET="ab12cd34ef56abcdef1234567890abcdef1234567890abcdef1234567890"
SIGNATURE=$(echo -n $BODY | openssl dgst -sha256 -hmac $SECRET | sed 's/^.* //')

curl -X POST http://localhost:12180/webhook/signal \
  -H "Content-Type: application/json" \
  -H "X-Signature: $SIGNATURE" \
  -d "$BODY"

curl http://localhost:12180/api/v1/status
*/

func main() {
	configPath := flag.String("config", "conf/config.yaml", "config file")
	seal := flag.String("seal", "", "encrypt a value with "+conf.MasterKeyEnv+" and exit")
	flag.Parse()

	if *seal != "" {
		v, err := secret.Seal(*seal, os.Getenv(conf.MasterKeyEnv))
		if err != nil {
			log.Fatalf("seal: %v", err)
		}
		fmt.Println(v)
		return
	}

	// 加载配置文件
	if err := conf.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	appCfg := conf.AppConfig
	logger.InitLogger(&appCfg.Log, appCfg.AppName)

	// 初始化数据库
	datasource := db.Init(db.Config{
		User:      appCfg.Db.Username,
		Password:  appCfg.Db.Password,
		Host:      appCfg.Db.Host,
		Port:      appCfg.Db.Port,
		DBName:    appCfg.Db.DbName,
		ParseTime: true,
	})

	// 初始化redis缓存，失败时不启用 redis 上报
	if err := cache.InitRedis(appCfg.Redis); err != nil {
		logger.Warnf("redis unavailable, report sink disabled: %v", err)
	}

	app, err := api.InitApp(&appCfg, datasource)
	if err != nil {
		logger.Fatalf("init app: %v", err)
	}
	app.Start(context.Background())

	// 创建并启动服务
	srv := api.NewServer(&appCfg)
	srv.RegisterOnShutdown(app.Close)
	srv.RegisterOnShutdown(func() {
		db.Close(datasource)
		cache.CloseRedis()
		logger.Sync()
	})

	srv.Run(middleware.NewMiddleware(), app.Router())
}
