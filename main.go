package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"

	"github.com/victorjacobs/hass-poller/bridge"
	"github.com/victorjacobs/hass-poller/config"
	"github.com/victorjacobs/hass-poller/homeassistant"
	"github.com/victorjacobs/hass-poller/report"
	"github.com/victorjacobs/hass-poller/routes"
)

var (
	configFile      = flag.String("config", "hass-poller.json", "Path of the configuration file (.json, .yaml or .yml).")
	listSerialPorts = flag.Bool("listSerialPorts", false, "Print the available serial ports and exit.")
)

func main() {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	flag.Parse()

	if *listSerialPorts {
		ports, err := report.SerialPorts()
		if err != nil {
			glog.Exit(err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := config.LoadConfiguration(*configFile)
	if err != nil {
		glog.Exitf("unable to read config file from %q: %v", *configFile, err)
	}

	registry, err := cfg.Registry()
	if err != nil {
		glog.Exitf("invalid sensor configuration: %v", err)
	}
	if registry.Len() == 0 {
		glog.Warning("no sensors configured, cycles will be empty")
	}
	for _, id := range registry.Duplicates() {
		glog.Warningf("sensor %v is configured more than once and will be polled repeatedly", id)
	}
	if cfg.Wifi.SSID != "" {
		glog.Infof("expecting network %q", cfg.Wifi.SSID)
	}

	if cfg.HomeAssistant.InsecureSkipVerify {
		glog.Warning("TLS certificate verification is disabled")
	}
	tlsConfig, err := homeassistant.TLSConfig(cfg.HomeAssistant.CAFile, cfg.HomeAssistant.InsecureSkipVerify)
	if err != nil {
		glog.Exitf("invalid TLS configuration: %v", err)
	}

	client, err := homeassistant.NewClient(cfg.HomeAssistant.BaseURL, cfg.HomeAssistant.AccessToken, cfg.RequestTimeout(), tlsConfig)
	if err != nil {
		glog.Exitf("unable to set up Home Assistant client: %v", err)
	}

	sinks := report.Multi{}

	if cfg.Console.SerialPort != "" {
		port, err := report.OpenSerial(cfg.Console.SerialPort, cfg.Console.BaudRate)
		if err != nil {
			glog.Exit(err)
		}
		defer port.Close()
		glog.Infof("writing sensor values to %v at %d baud", cfg.Console.SerialPort, cfg.Console.BaudRate)
		sinks = append(sinks, report.NewSerialConsole(port))
	} else {
		sinks = append(sinks, report.NewConsole(os.Stdout))
	}

	if cfg.Mqtt != nil {
		mqttClient := mqtt.NewClient(cfg.Mqtt.ClientOptions())
		if t := mqttClient.Connect(); t.Wait() && t.Error() != nil {
			glog.Exitf("MQTT connection error: %v", t.Error())
		}
		defer mqttClient.Disconnect(250)
		sinks = append(sinks, report.NewMQTT(mqttClient, cfg.Mqtt.TopicPrefix))
	}

	var cache *report.Cache
	if cfg.HTTP != nil {
		if cache, err = report.NewCache(cfg.HTTP.CacheTTLDuration()); err != nil {
			glog.Exitf("unable to set up result cache: %v", err)
		}
		defer cache.Close()
		sinks = append(sinks, cache)
	}

	b, err := bridge.New(bridge.Config{
		Registry:  registry,
		Fetcher:   client,
		Reporter:  sinks,
		Interval:  cfg.ReadInterval(),
		Connector: client,
	})
	if err != nil {
		glog.Exitf("unable to set up polling: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HTTP != nil {
		router := httprouter.New()
		routes.Register(router, cache, b)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go loopSafely(ctx, func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				glog.Warningf("HTTP server failed: %v", err)
				time.Sleep(time.Second)
			}
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	glog.Infof("polling %d sensors from %v every %v", registry.Len(), client.BaseURL(), cfg.ReadInterval())

	loopSafely(ctx, func() {
		b.Run(ctx)
	})

	glog.Infof("shutting down")
}
