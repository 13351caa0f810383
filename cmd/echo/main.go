// Command echo is the reactor analogue of muduo's examples/simple/echo:
// every byte a client sends is written straight back.
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
	addr := flag.String("addr", ":2007", "address to listen on")
	threads := flag.Int("threads", 0, "IO thread count (0 = single-threaded)")
	flag.Parse()

	loop, err := reactor.NewEventLoop()
	if err != nil {
		log.Fatalf("echo: %v", err)
	}

	server, err := reactor.NewTcpServer(loop, "echo", *addr, reactor.WithThreadNum(*threads))
	if err != nil {
		log.Fatalf("echo: %v", err)
	}

	server.ConnectionCallback = func(conn *reactor.TcpConnection) {
		if conn.Connected() {
			log.Printf("echo: [%s] connected from %s", conn.Name(), conn.PeerAddr())
		} else {
			log.Printf("echo: [%s] disconnected", conn.Name())
		}
	}
	server.MessageCallback = func(conn *reactor.TcpConnection, buf *reactor.Buffer, _ time.Time) {
		conn.SendString(buf.RetrieveAllString())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		loop.Quit()
	}()

	if err := server.Start(nil); err != nil {
		log.Fatalf("echo: %v", err)
	}
	log.Printf("echo: listening on %s", *addr)
	if err := loop.Run(); err != nil {
		log.Fatalf("echo: %v", err)
	}
}
