package service

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// AudioProvider returns archived session audio as WAV.
type AudioProvider interface {
	GetAudio(ctx context.Context, id string) ([]byte, error)
}

// Data keeps data required for service work
type Data struct {
	Port     int
	Prompter *PrompterHandler
	Audio    AudioProvider
	Ctx      context.Context
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) (<-chan struct{}, error) {
	goapp.Log.Info().Msgf("Starting prompter service at %d", data.Port)
	if err := validate(data); err != nil {
		return nil, err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	res := make(chan struct{}, 1)
	go func() {
		defer close(res)
		if err := gracehttp.Serve(e.Server); err != nil {
			goapp.Log.Error().Err(err).Msg("can't start web server")
		}
		goapp.Log.Info().Msg("exit http routine")
	}()
	return res, nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("prompterd", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.GET("/live", live(data))
	e.GET("/client/ws/prompter", subscribe(data))
	e.GET("/audio/:id", audioResult(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func audioResult(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		id := c.Param("id")
		if data.Audio == nil || id == "" {
			return echo.NewHTTPError(http.StatusNotFound, "no audio")
		}
		res, err := data.Audio.GetAudio(c.Request().Context(), id)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("id", id).Msg("can't get audio")
			return echo.NewHTTPError(http.StatusNotFound, "no audio")
		}
		return c.Blob(http.StatusOK, "audio/wav", res)
	}
}

func validate(data *Data) error {
	if data.Prompter == nil {
		return fmt.Errorf("no Prompter handler")
	}
	return nil
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribe(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.Prompter.HandleConnection(data.Ctx, ws, c.Request())
	}
}
