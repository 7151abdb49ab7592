package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wgwarden/config"
	"wgwarden/internal/admin"
	"wgwarden/internal/controller"
	"wgwarden/internal/db"
	"wgwarden/internal/health"
	"wgwarden/internal/httpapi"
	"wgwarden/internal/ipam"
	"wgwarden/internal/logs"
	"wgwarden/internal/middleware"
	"wgwarden/internal/models"
	"wgwarden/internal/render/wgconf"
	"wgwarden/internal/repo"
	"wgwarden/internal/stats"
	"wgwarden/internal/wgiface"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// registry — полный контракт реестра: команды диспетчера плюс
// обновление телеметрии сверкой статистики.
type registry interface {
	controller.Registry
	stats.Registry
}

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	dev        wgiface.KernelDevice // nil — работаем на заглушке
	dispatcher *controller.Dispatcher
	Router     *mux.Router
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	/* 1) Логи */
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	/* 2) Реестр: БД или память */
	var reg registry
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		a.db = d
		if err := a.db.AutoMigrate(&models.Peer{}, &models.PeerArchive{}); err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
		reg = repo.NewPeerStore(a.db, a.cfg.Registry.Retention)
	} else {
		logs.Logger.Warn("no database configured, registry lives in memory")
		reg = repo.NewMemoryStore(a.cfg.Registry.Retention)
	}

	/* 3) Адресный пул */
	pool, err := ipam.New(a.cfg.WireGuard.SubnetCIDR)
	if err != nil {
		log.Fatalf("subnet: %v", err)
	}

	/* 4) Интерфейс ядра; без него живём на заглушке */
	var dev wgiface.Device = wgiface.NopDevice{}
	kd, err := wgiface.NewCtrlDevice(a.cfg.WireGuard.Interface)
	if err != nil {
		logs.Logger.Warnf("wireguard device %s unavailable, running detached: %v",
			a.cfg.WireGuard.Interface, err)
	} else {
		a.dev = kd
		dev = kd
		_, ipnet, _ := net.ParseCIDR(a.cfg.WireGuard.SubnetCIDR)
		ones, _ := ipnet.Mask.Size()
		srvCIDR := fmt.Sprintf("%s/%d", pool.ServerAddress(), ones)
		if err := kd.EnsureAddress(srvCIDR); err != nil {
			logs.Logger.Warnf("ensure %s on %s: %v", srvCIDR, a.cfg.WireGuard.Interface, err)
		}
	}
	applier := wgiface.New(dev, a.cfg.WireGuard.ApplyMaxFail)

	/* 5) Источник статистики */
	var src stats.Source
	if feed := a.cfg.WireGuard.StatsFeed; feed != "" {
		src = stats.FileSource{Path: feed}
	} else if a.dev != nil {
		src = stats.DeviceSource{Dev: a.dev}
	}
	var ticker controller.StatsTicker
	if src != nil {
		ticker = stats.NewReconciler(src, reg)
	} else {
		logs.Logger.Warn("no stats source, traffic accounting disabled")
	}

	/* 6) Диспетчер команд */
	a.dispatcher, err = controller.New(controller.Options{
		Registry: reg,
		Applier:  applier,
		Stats:    ticker,
		Pool:     pool,
		Server: wgconf.ServerParams{
			PublicKey: a.cfg.WireGuard.ServerPublicKey,
			Endpoint:  a.cfg.WireGuard.Endpoint,
			DNS:       a.cfg.WireGuard.DNS,
		},
		Policy:          controller.NewPolicy(a.cfg.Auth.AdminIDs),
		UsernamePattern: a.cfg.Auth.UsernamePattern,
		ConfigFile:      a.cfg.WireGuard.ConfigFile,
		ApplyInterval:   a.cfg.WireGuard.ApplyInterval,
		StatsInterval:   a.cfg.WireGuard.StatsInterval,
	})
	if err != nil {
		log.Fatalf("controller: %v", err)
	}

	/* 7) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)

	/* 8) Health */
	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db) // /healthz, /readyz
	} else {
		health.RegisterRoutes(a.Router)
	}

	/* 9) Операторский API моста */
	httpapi.RegisterRoutes(a.Router, httpapi.New(a.dispatcher), a.cfg.Server.BridgeToken)

	/* 10) Админка; действует от имени первого администратора */
	if ids := a.cfg.Auth.AdminIDs; len(ids) > 0 {
		admin.Attach(a.Router, a.dispatcher, ids[0])
	}

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logs.Logger.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	// Воркер очереди мутаций + фоновые сверки
	go a.dispatcher.Run(a.ctx)

	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Logger.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	if a.dev != nil {
		if err := a.dev.Close(); err != nil {
			logs.Logger.Errorf("wg device close: %v", err)
		}
	}
	return nil
}
