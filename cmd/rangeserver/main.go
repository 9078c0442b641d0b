// Command rangeserver runs a single range-server's side of the recovery
// subsystem: the destination (phantom-receive/update/prepare/commit,
// acknowledge-load) and player (replay-fragments) RPC handlers from
// pkg/recovery/rangeserver, registered on a grpc.Server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	_ "modernc.org/sqlite"

	"github.com/tessellate-db/tessellate/pkg/blockcodec"
	"github.com/tessellate-db/tessellate/pkg/clusterctx"
	"github.com/tessellate-db/tessellate/pkg/config"
	"github.com/tessellate-db/tessellate/pkg/fragment"
	"github.com/tessellate-db/tessellate/pkg/metalog"
	"github.com/tessellate-db/tessellate/pkg/phantom"
	"github.com/tessellate-db/tessellate/pkg/recovery/rangeserver"
	"github.com/tessellate-db/tessellate/pkg/rpcdial"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

func main() {
	location := flag.String("location", "", "this range-server's location id (required)")
	addrLis := flag.String("addr", "localhost:9100", "address to listen for recovery RPCs on")
	addrPub := flag.String("pub-addr", "", "address other range-servers should dial to reach this one (default: -addr)")
	masterAddr := flag.String("master", "localhost:9000", "the master's recovery RPC address")
	dbPath := flag.String("db", "rangeserver.db", "path to this server's RSML sqlite database")
	logDir := flag.String("log-dir", "./phantom-logs", "base directory for phantom commit logs")
	codecName := flag.String("codec", "none", "phantom-update block codec: none, snappy, or zstd")
	rpsLimit := flag.Float64("rps", 1000, "non-urgent RPC rate limit (requests/sec); recovery traffic bypasses it")
	flag.Parse()

	if *location == "" {
		log.Fatal("rangeserver: -location is required")
	}
	if *addrPub == "" {
		*addrPub = *addrLis
	}

	codec, err := parseCodec(*codecName)
	if err != nil {
		log.Fatalf("rangeserver: %v", err)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("rangeserver: open %s: %v", *dbPath, err)
	}
	defer db.Close()

	rsml, err := metalog.Open(db, "rsml/"+*location)
	if err != nil {
		log.Fatalf("rangeserver: open RSML: %v", err)
	}

	masterClient, err := rpcdial.DialAddr(*masterAddr)
	if err != nil {
		log.Fatalf("rangeserver: dial master %s: %v", *masterAddr, err)
	}

	servers := clusterctx.NewServerList()
	dialer := rpcdial.New(servers)
	defer dialer.Close()

	svc := &rangeserver.Service{
		Location:     *location,
		Phantoms:     phantom.NewRangeMap(),
		Store:        fragment.NewMemStore(),
		RSML:         rsml,
		Dial:         dialer,
		MasterClient: masterClient,
		Cfg:          config.FromEnv(),
		LogDir:       *logDir,
		Codec:        codec,
	}

	limiter := rate.NewLimiter(rate.Limit(*rpsLimit), int(*rpsLimit))
	srv := grpc.NewServer(grpc.UnaryInterceptor(rsrpc.ThrottleInterceptor(limiter)))
	rsrpc.RegisterRecoveryServer(srv, svc)

	lis, err := net.Listen("tcp", *addrLis)
	if err != nil {
		log.Fatalf("rangeserver: listen %s: %v", *addrLis, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	log.Printf("rangeserver: %s listening on %s (public %s)", *location, *addrLis, *addrPub)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	<-ctx.Done()
	srv.GracefulStop()
	if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		log.Fatalf("rangeserver: serve: %v", err)
	}
}

func parseCodec(name string) (blockcodec.ID, error) {
	switch name {
	case "none", "":
		return blockcodec.None, nil
	case "snappy":
		return blockcodec.Snappy, nil
	case "zstd":
		return blockcodec.Zstd, nil
	default:
		return 0, errors.New("rangeserver: unknown codec " + name)
	}
}
