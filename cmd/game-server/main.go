package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/liangdas/mqant"
	"github.com/liangdas/mqant/module"
	"github.com/liangdas/mqant/registry"
	"github.com/liangdas/mqant/registry/consul"
	"github.com/nats-io/nats.go"

	"github.com/Fishbowl37/RPG-Server/internal/modules/game"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/config"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/notify"
)

const version = "1.0.0"

type bootstrap struct {
	consulAddr string
	natsAddr   string
	configPath string
}

func loadBootstrap() bootstrap {
	// .env 仅用于本地开发
	if err := godotenv.Load(); err == nil {
		fmt.Println("[Main] 已加载 .env")
	}
	return bootstrap{
		consulAddr: config.GetEnvOrDefault("CONSUL_ADDRESS", "localhost:8500"),
		natsAddr:   config.GetEnvOrDefault("NATS_ADDRESS", "localhost:4222"),
		configPath: config.GetEnvOrDefault("GAME_SERVER_CONFIG", "./configs/server/game-server.json"),
	}
}

func main() {
	fmt.Printf("[Main] RPG battle server %s\n", version)

	b := loadBootstrap()
	fmt.Printf("[Main] consul=%s nats=%s config=%s\n", b.consulAddr, b.natsAddr, b.configPath)

	// mqant 的 RPC 依赖 NATS，连不上直接退出；战斗事件复用同一连接
	nc, err := nats.Connect("nats://"+b.natsAddr,
		nats.Name("game-server"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[Main] NATS 连接失败: %v\n", err)
		os.Exit(1)
	}
	notify.SetNatsConn(nc)

	rs := consul.NewRegistry(func(o *registry.Options) {
		o.Addrs = []string{b.consulAddr}
	})

	app := mqant.CreateApp(
		module.Configure(b.configPath),
		module.Debug(false),
		module.Nats(nc),
		module.Registry(rs),
	)
	app.Run(game.Module())
}
