// package main: balance processor service
//
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tarancss/balproc/lib/block"
	"github.com/tarancss/balproc/lib/config"
	"github.com/tarancss/balproc/lib/msg"
	"github.com/tarancss/balproc/lib/msg/amqp"
	"github.com/tarancss/balproc/lib/msg/redis"
	"github.com/tarancss/balproc/lib/store/db"
	"github.com/tarancss/balproc/processor"
	"github.com/tarancss/balproc/status"
)

// storeCheck is how often the store connection is checked.
const storeCheck = 30 * time.Second

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100/metrics")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		log.WithError(err).Fatal("Cannot read configuration")
	}

	if lvl, err := logrus.ParseLevel(conf.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithError(err).Warn("Unknown log level, using info")
	}

	log.WithFields(logrus.Fields{
		"dbtype":      conf.DBType,
		"mbtype":      conf.MbType,
		"serviceName": conf.ServiceName,
		"ledger":      conf.Ledger.Name,
		"prefetch":    conf.Prefetch,
	}).Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// connect to database
	dbConn, err := db.New(conf.DBType, conf.DBConn, conf.DBName)
	if err != nil {
		log.WithError(err).Fatal("Cannot connect to database")
	}

	defer func() {
		err := db.Close(conf.DBType, dbConn)
		log.WithError(err).Infof("Disconnecting %s database", conf.DBType)
	}()

	// connect to the ledger node
	ledger, err := block.Init(ctx, conf.Ledger)
	if err != nil {
		log.WithError(err).Fatal("Cannot connect to ledger node")
	}
	defer ledger.Close()

	log.WithField("node", conf.Ledger.Node).Info("Ledger client loaded")

	// load Prometheus monitor
	if *monitor {
		go func() {
			log.Info("Serving metrics API")

			h := http.NewServeMux()
			h.Handle("/metrics", promhttp.Handler())

			if err := http.ListenAndServe(":9100", h); err != nil { //nolint:gosec // internal metrics endpoint
				log.WithError(err).Error("Metrics API stopped")
			}
		}()
	}

	// load message broker
	mb := newBroker(conf, log)
	if err = mb.Setup(); err != nil {
		log.WithError(err).Fatal("Cannot set up message broker")
	}

	defer func() {
		err := mb.Close()
		log.WithError(err).Info("Closing message broker")
	}()

	// status API
	var st *status.Status
	if conf.StatusPort != "" {
		st = status.New(dbConn, log)
		st.Start("", conf.StatusPort)
	}

	// capture CTRL+C or docker's SIGTERM for gracious exit
	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Info("Program killed !")
		cancel()
	}()

	// losing the store is fatal, as losing the broker is
	go func() {
		t := time.NewTicker(storeCheck)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				pctx, pcancel := context.WithTimeout(ctx, storeCheck)
				err := db.Ping(pctx, dbConn)
				pcancel()

				if err != nil && ctx.Err() == nil {
					log.WithError(err).Fatal("Lost connection to database")
				}
			}
		}
	}()

	p := processor.New(ledger, dbConn, mb, processor.Options{
		Service:          conf.ServiceName,
		Workers:          conf.Prefetch,
		FetchTimeout:     time.Duration(conf.FetchTimeout) * time.Second,
		FetchConcurrency: conf.FetchConcurrency,
	}, log)

	err = p.Run(ctx)

	if st != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
		_ = st.Stop(sctx)
		scancel()
	}

	if err != nil {
		// deferred closes are skipped: the connections are broken anyway
		log.WithError(err).Fatal("Balance processor stopped")
	}

	log.Info("Balance processor done")
}

// newBroker connects to the configured message broker, retrying once after 10 seconds to give it time to start.
func newBroker(conf config.ServiceConfig, log *logrus.Logger) msg.MsgBroker {
	connect := func() (msg.MsgBroker, error) {
		switch conf.MbType {
		case "amqp":
			return amqp.New(conf.MbConn, conf.ServiceName, conf.Prefetch, log)
		case "redis":
			return redis.New(conf.MbConn, conf.ServiceName, log)
		}

		log.WithField("mbtype", conf.MbType).Fatal("Unknown message broker type")

		return nil, nil
	}

	mb, err := connect()
	if err != nil {
		log.WithError(err).Warn("Message broker not ready, retrying in 10s")
		time.Sleep(10 * time.Second) //nolint:gomnd // wait for the broker to be ready

		if mb, err = connect(); err != nil {
			log.WithError(err).Fatal("Cannot connect to message broker")
		}
	}

	return mb
}
