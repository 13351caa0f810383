// Command discard is the reactor analogue of muduo's examples/simple/discard:
// every byte a client sends is read and dropped, exercising the read path
// and backpressure-free receive loop without ever writing.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loopcore/reactor"
)

func main() {
	addr := flag.String("addr", ":2009", "address to listen on")
	threads := flag.Int("threads", 0, "IO thread count (0 = single-threaded)")
	flag.Parse()

	loop, err := reactor.NewEventLoop()
	if err != nil {
		log.Fatalf("discard: %v", err)
	}

	server, err := reactor.NewTcpServer(loop, "discard", *addr, reactor.WithThreadNum(*threads))
	if err != nil {
		log.Fatalf("discard: %v", err)
	}

	server.MessageCallback = func(_ *reactor.TcpConnection, buf *reactor.Buffer, _ time.Time) {
		buf.RetrieveAll()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		loop.Quit()
	}()

	if err := server.Start(nil); err != nil {
		log.Fatalf("discard: %v", err)
	}
	log.Printf("discard: listening on %s", *addr)
	if err := loop.Run(); err != nil {
		log.Fatalf("discard: %v", err)
	}
}
