// Command baikald is the composition root: it picks a transport (USB or
// serial), detects the attached chain, and runs one scan goroutine per
// miner until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/baikal-mining/baikal-driver/internal/algorithm"
	"github.com/baikal-mining/baikal-driver/internal/config"
	"github.com/baikal-mining/baikal-driver/internal/scan"
	"github.com/baikal-mining/baikal-driver/internal/supervisor"
	"github.com/baikal-mining/baikal-driver/internal/telemetry"
	"github.com/baikal-mining/baikal-driver/internal/transport"
	"github.com/baikal-mining/baikal-driver/internal/workfactory"
)

func main() {
	var (
		useSerial   = flag.Bool("serial", false, "use the UART transport instead of USB")
		serialPort  = flag.String("serial-port", transport.DefaultSerialPort, "serial device path")
		minerCount  = flag.Uint("miners", 1, "miner count to request during RESET")
		algoName    = flag.String("algorithm", "x11", "pool algorithm name")
		metricsAddr = flag.String("metrics-addr", ":9100", "Prometheus metrics listen address")
	)
	flag.Parse()

	log := telemetry.NewLogger()

	opts, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	algo, err := parseAlgorithm(*algoName)
	if err != nil {
		log.WithError(err).Fatal("invalid algorithm")
	}

	mode, ok := algorithm.Code(algo)
	if !ok {
		log.WithField("algorithm", *algoName).Fatal("algorithm has no on-wire code")
	}

	conn, err := openTransport(*useSerial, *serialPort)
	if err != nil {
		log.WithError(err).Fatal("failed to open transport")
	}

	chain, err := supervisor.Detect(conn, uint8(*minerCount), opts, mode)
	if err != nil {
		log.WithError(err).Fatal("chain detection failed")
	}
	if err := chain.Identify(); err != nil {
		log.WithError(err).Warn("set_id failed for one or more miners")
	}
	log.WithField("miner_count", chain.Bus.MinerCount).Info("chain detected")

	metrics := telemetry.NewMetrics()
	metrics.MustRegister(prometheus.DefaultRegisterer)
	go serveMetrics(*metricsAddr, log)

	factory := workfactory.NewMock(algo)
	engine := scan.NewEngine(chain.Bus, chain.Records, factory, factory, algo)

	if err := engine.UpdatePass(false); err != nil {
		log.WithError(err).Fatal("initial update pass failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchForNewBlock(ctx, engine, log)

	var wg sync.WaitGroup
	for i := 0; i < chain.Bus.MinerCount; i++ {
		if !chain.Records[i].Working {
			continue
		}
		wg.Add(1)
		go runMiner(ctx, uint8(i), engine, metrics, log, &wg)
	}

	wg.Wait()
	if err := chain.Shutdown(); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}

func runMiner(ctx context.Context, minerID uint8, engine *scan.Engine, metrics *telemetry.Metrics, log *logrus.Logger, wg *sync.WaitGroup) {
	defer wg.Done()

	label := strconv.Itoa(int(minerID))
	entry := log.WithField("miner_id", label)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		hashrate, err := engine.Tick(minerID)
		if err != nil {
			entry.WithError(err).Error("scan tick failed")
			time.Sleep(time.Second)
			continue
		}

		metrics.HashesPerSecond.WithLabelValues(label).Set(hashrate)
	}
}

// watchForNewBlock runs the Update Pass every time the process receives
// SIGHUP, the operator-facing equivalent of the pool client's
// update_work/flush_work hook firing on a new block.
func watchForNewBlock(ctx context.Context, engine *scan.Engine, log *logrus.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := engine.UpdatePass(true); err != nil {
				log.WithError(err).Warn("update pass failed")
			}
		}
	}
}

func parseAlgorithm(name string) (algorithm.Algorithm, error) {
	switch name {
	case "blakecoin":
		return algorithm.Blakecoin, nil
	case "vanilla":
		return algorithm.Vanilla, nil
	case "decred":
		return algorithm.Decred, nil
	case "sia":
		return algorithm.Sia, nil
	case "lbry":
		return algorithm.Lbry, nil
	case "pascal":
		return algorithm.Pascal, nil
	case "cryptonight":
		return algorithm.Cryptonight, nil
	case "cryptonightlite":
		return algorithm.CryptonightLite, nil
	case "x11":
		return algorithm.X11, nil
	default:
		return algorithm.Unknown, fmt.Errorf("unknown algorithm %q", name)
	}
}

func openTransport(useSerial bool, serialPort string) (transport.Transport, error) {
	if useSerial {
		return transport.OpenSerial(serialPort, 3*time.Second)
	}
	return transport.OpenUSB()
}

func serveMetrics(addr string, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server exited")
	}
}
