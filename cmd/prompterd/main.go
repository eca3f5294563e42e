package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/labstack/gommon/color"

	"github.com/speechscroll/prompterd/internal/db"
	"github.com/speechscroll/prompterd/internal/service"
	"github.com/speechscroll/prompterd/internal/session"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	store, err := newStore(cfg.GetString("store.url"), cfg.GetString("store.key"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init store")
	}
	defer store.Close()

	data := &service.Data{}
	data.Ctx = ctx
	data.Port = cfg.GetInt("port")
	data.Prompter = service.NewPrompterHandler(cfg.GetString("speech.url"), store, cfg.GetBool("archive.audio"))
	data.Audio = store

	doneCh, err := service.StartWebServer(data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}

	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

type closableStore interface {
	session.Store
	GetAudio(ctx context.Context, id string) ([]byte, error)
	Close() error
}

func newStore(url, key string) (closableStore, error) {
	if url == "" {
		goapp.Log.Info().Msg("using in-memory store")
		return db.NewMemoryStore(), nil
	}
	return db.NewRedisStore(url, key)
}

var (
	version = "DEV"
)

func printBanner() {
	banner :=
		`
    SPEECHSCROLL PROMPTER DAEMON v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/speechscroll/prompterd"))
}
