// Command master runs the cluster master side of the recovery subsystem:
// the cluster context, the recovery RPC endpoint players and
// receivers report completion to, and the operator entry point that
// starts a Recover-Server operation for a failed range-server.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	consulapi "github.com/hashicorp/consul/api"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	_ "modernc.org/sqlite"

	"github.com/tessellate-db/tessellate/pkg/clusterctx"
	"github.com/tessellate-db/tessellate/pkg/config"
	"github.com/tessellate-db/tessellate/pkg/faultinjector"
	"github.com/tessellate-db/tessellate/pkg/fragment"
	"github.com/tessellate-db/tessellate/pkg/lock"
	"github.com/tessellate-db/tessellate/pkg/metalog"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	mastersvc "github.com/tessellate-db/tessellate/pkg/recovery/master"
	"github.com/tessellate-db/tessellate/pkg/recovery/recoverserver"
	"github.com/tessellate-db/tessellate/pkg/rpcdial"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

func main() {
	addrLis := flag.String("addr", "localhost:9000", "address to listen for recovery RPCs on")
	dbPath := flag.String("db", "master.db", "path to the master meta-log's sqlite database")
	consulAddr := flag.String("consul", "", "consul HTTP address (empty: library default)")
	recoverLoc := flag.String("recover", "", "if set, start a Recover-Server operation for this location and exit when it completes")
	faultOpts := flag.String("faults", "", "faultinjector probe spec string, e.g. \"recover-server-rs1-INITIAL:throw:0\"")
	debugPrompt := flag.Bool("debug-prompt", false, "read faultinjector probe specs from stdin, one per line, until EOF")
	rpsLimit := flag.Float64("rps", 1000, "non-urgent RPC rate limit (requests/sec); recovery traffic bypasses it")
	flag.Parse()

	if *faultOpts != "" {
		if err := faultinjector.Global.ParseOptions(*faultOpts); err != nil {
			log.Fatalf("master: %v", err)
		}
	}

	consulCfg := consulapi.DefaultConfig()
	if *consulAddr != "" {
		consulCfg.Address = *consulAddr
	}
	consulClient, err := consulapi.NewClient(consulCfg)
	if err != nil {
		log.Fatalf("master: consul client: %v", err)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("master: open %s: %v", *dbPath, err)
	}
	defer db.Close()

	mml, err := metalog.Open(db, "mml")
	if err != nil {
		log.Fatalf("master: open master meta-log: %v", err)
	}

	cfg := config.FromEnv()
	cctx := clusterctx.NewContext()
	locker := lock.NewLocker(consulClient, cfg.ConnectionRetryInterval, cfg.LockMaxAttempts)
	dialer := rpcdial.New(cctx.Servers)
	defer dialer.Close()

	// The failed server's commit-log fragments live in shared storage,
	// reachable from the master the same way any range-server reaches it. MemStore is
	// the in-process stand-in; a real deployment backs fragment.Store with a
	// client for whatever shared filesystem holds the log.
	fragStore := fragment.NewMemStore()

	limiter := rate.NewLimiter(rate.Limit(*rpsLimit), int(*rpsLimit))
	srv := grpc.NewServer(grpc.UnaryInterceptor(rsrpc.ThrottleInterceptor(limiter)))

	masterServer := mastersvc.New(cctx)
	rsrpc.RegisterRecoveryServer(srv, masterServer)

	lis, err := net.Listen("tcp", *addrLis)
	if err != nil {
		log.Fatalf("master: listen %s: %v", *addrLis, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	log.Printf("master: recovery RPC endpoint listening on %s", *addrLis)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if *debugPrompt {
		go readFaultPrompt()
	}

	if *recoverLoc != "" {
		rsmlLog, err := metalog.Open(db, "rsml/"+*recoverLoc)
		if err != nil {
			log.Fatalf("master: open RSML for %s: %v", *recoverLoc, err)
		}

		op := recoverserver.NewLive(*recoverLoc, locker, cctx, rsmlLog, dialer, fragStore, mml, rsmlLog, cfg,
			func(rng rangekey.Ident, err error) {
				if err != nil {
					log.Printf("master: range %v failed to resolve: %v", rng, err)
				}
			})

		if err := op.Run(ctx); err != nil {
			log.Fatalf("master: recover-server %s failed: %v", *recoverLoc, err)
		}
		log.Printf("master: recover-server %s complete", *recoverLoc)
		srv.GracefulStop()
		<-errCh
		return
	}

	<-ctx.Done()
	srv.GracefulStop()
	if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		log.Fatalf("master: serve: %v", err)
	}
}

func readFaultPrompt() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := faultinjector.Global.ParseOptions(line); err != nil {
			fmt.Fprintf(os.Stderr, "master: %v\n", err)
		}
	}
}
