// Command node runs one process of the perfect-links/URB/lattice-agreement
// system: it binds a UDP socket, connects to its peers from a hosts file,
// and runs either URB broadcast or multi-shot lattice agreement depending
// on the shape of its config file, per spec.md §6. Grounded on the
// teacher's demo/start_paxos/start_paxos.go construct-connect-run shape
// and yousefan-epaxos/main.go's flag-based CLI.
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyv-paxos/latticebroadcast/internal/config"
	"github.com/dyv-paxos/latticebroadcast/internal/lattice"
	"github.com/dyv-paxos/latticebroadcast/internal/logger"
	"github.com/dyv-paxos/latticebroadcast/internal/node"
	"github.com/dyv-paxos/latticebroadcast/internal/urb"
	"github.com/dyv-paxos/latticebroadcast/internal/wire"
)

func main() {
	id := flag.Uint64("id", 0, "this process's 1-indexed id in the hosts file")
	hostsPath := flag.String("hosts", "", "path to the hosts file (\"id ip port\" per line)")
	outputPath := flag.String("output", "", "path to write the protocol event log")
	configPath := flag.String("config", "", "path to the run config file")
	windowSize := flag.Int("window", 4, "SEND_WINDOW_SIZE: datagrams per link per send tick")
	sendTimeoutMS := flag.Int("send-timeout-ms", 50, "SEND_TIMEOUT_MS: sender tick interval")
	logTimeoutMS := flag.Int("log-timeout-ms", 100, "LOG_TIMEOUT_MS: logger flush interval")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := log.WithField("id", *id)

	if *id == 0 || *hostsPath == "" || *outputPath == "" || *configPath == "" {
		entry.Fatal("usage: node -id <n> -hosts <path> -output <path> -config <path>")
	}

	hosts, err := config.ParseHostsFile(*hostsPath)
	if err != nil {
		entry.WithError(err).Fatal("parse hosts file")
	}
	runConfig, err := config.ParseConfigFile(*configPath)
	if err != nil {
		entry.WithError(err).Fatal("parse config file")
	}
	out, err := logger.NewEventLog(*outputPath, entry)
	if err != nil {
		entry.WithError(err).Fatal("open output log")
	}

	conn, peers, err := node.DialSelf(hosts, *id)
	if err != nil {
		entry.WithError(err).Fatal("bind socket")
	}

	sendInterval := time.Duration(*sendTimeoutMS) * time.Millisecond
	logInterval := time.Duration(*logTimeoutMS) * time.Millisecond

	var teardown func()
	switch runConfig.Mode {
	case config.ModeURB:
		teardown = runURB(*id, conn, peers, hosts.N(), *windowSize, sendInterval, logInterval, runConfig, out, entry)
	case config.ModeLA:
		teardown = runLA(*id, conn, peers, hosts.N(), *windowSize, sendInterval, logInterval, runConfig, out, entry)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	entry.Info("received shutdown signal, tearing down")

	teardown()
	if err := out.Close(); err != nil {
		entry.WithError(err).Error("flush output log on shutdown")
	}
}

// runURB starts a Node in URB mode and a background goroutine that
// broadcasts runConfig.TotalMessages messages, and returns a teardown
// func that stops the node's workers.
func runURB(
	selfID uint64,
	conn *net.UDPConn,
	peers []config.Host,
	n, windowSize int,
	sendInterval, logInterval time.Duration,
	runConfig *config.RunConfig,
	out *logger.EventLog,
	log logrus.FieldLogger,
) func() {
	nd := node.New[wire.URBMessage](selfID, conn, peers, windowSize, sendInterval, logInterval,
		wire.EncodeURBMessage, wire.DecodeURBMessage, nil, out, log)
	engine := urb.New(selfID, n, nd, out, log)
	nd.SetUpcall(engine)
	nd.Start()

	go func() {
		for i := uint32(0); i < runConfig.TotalMessages; i++ {
			engine.Broadcast()
		}
	}()

	return nd.Stop
}

// runLA starts a Node in LA mode and the proposal worker spec.md §4.7
// describes: pop a proposal set, propose it under a monotonically
// increasing instance id, block until that shot decides, then pull the
// next. Returns a teardown func that stops the proposal worker (via
// Manager.Terminate, unblocking any pending wait) and the node's workers.
func runLA(
	selfID uint64,
	conn *net.UDPConn,
	peers []config.Host,
	n, windowSize int,
	sendInterval, logInterval time.Duration,
	runConfig *config.RunConfig,
	out *logger.EventLog,
	log logrus.FieldLogger,
) func() {
	nd := node.New[wire.LAEntry](selfID, conn, peers, windowSize, sendInterval, logInterval,
		wire.EncodeLAEntry, wire.DecodeLAEntry, nil, out, log)
	manager := lattice.NewManager(n, node.NewLABroadcaster(nd), out, log)
	nd.SetUpcall(node.NewLAUpcall(manager))
	nd.Start()

	proposalsDone := make(chan struct{})
	go func() {
		defer close(proposalsDone)
		for i, values := range runConfig.Proposals {
			instanceID := uint32(i + 1)
			manager.Propose(instanceID, values)
			manager.WaitUntilDecidedOrTerminated(instanceID)
		}
	}()

	return func() {
		manager.Terminate()
		<-proposalsDone
		nd.Stop()
	}
}
