package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/cupogo/andvari/utils/zlog"

	"github.com/liut/kaiwa/htdocs"
	"github.com/liut/kaiwa/pkg/settings"
	"github.com/liut/kaiwa/pkg/web"
)

func main() {
	app := &cli.App{
		Name:    "kaiwa",
		Usage:   "English conversation practice relay",
		Version: settings.Current.Version,
		Before: func(c *cli.Context) error {
			setupLogger()
			return nil
		},
		Action: webAction,
		Commands: []*cli.Command{
			{
				Name:   "web",
				Usage:  "run the chat relay and the web page",
				Action: webAction,
			},
			talkCommand(),
			{
				Name:  "usage",
				Usage: "show environment settings",
				Action: func(c *cli.Context) error {
					return settings.Usage()
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger() {
	var zlogger *zap.Logger
	if settings.InDevelop() {
		zlogger, _ = zap.NewDevelopment()
	} else {
		zlogger, _ = zap.NewProduction()
	}
	zlog.Set(zlogger.Sugar())
}

func webAction(c *cli.Context) error {
	sugar := zlog.Get()

	docHandler := http.FileServer(http.FS(htdocs.FS()))
	if len(settings.Current.DocRoot) > 0 {
		docHandler = http.FileServer(http.Dir(settings.Current.DocRoot))
	}
	srv := web.New(web.Config{
		Addr:       settings.Current.HTTPListen,
		Debug:      settings.InDevelop(),
		RateLimit:  settings.Current.RateLimit,
		DocHandler: docHandler,
	})

	idleClosed := make(chan struct{})
	go func() {
		quit := make(chan os.Signal, 2)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		sugar.Info("shuting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			sugar.Infow("server shutdown:", "err", err)
		}
		close(idleClosed)
	}()

	if err := srv.Serve(c.Context); err != nil {
		sugar.Infow("serve fail", "err", err)
		return err
	}

	<-idleClosed
	return nil
}
