// Command httpserver is a minimal demo of the http package: it answers
// GET / with a static greeting and echoes the request path for everything
// else, the way muduo's examples/simple/httpserver demonstrates HttpServer
// wired to a single handler.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/loopcore/reactor"
	reactorhttp "github.com/loopcore/reactor/http"
)

func handle(req *reactorhttp.Request, resp *reactorhttp.Response) {
	switch req.Path() {
	case "/":
		resp.SetStatusCode(reactorhttp.StatusOK)
		resp.SetStatusMessage("OK")
		resp.SetContentType("text/plain")
		resp.SetBody([]byte("reactor httpserver\n"))
	default:
		resp.SetStatusCode(reactorhttp.StatusOK)
		resp.SetStatusMessage("OK")
		resp.SetContentType("text/plain")
		resp.SetBody([]byte("you requested: " + req.Path() + "\n"))
	}
}

func main() {
	addr := flag.String("addr", ":8000", "address to listen on")
	threads := flag.Int("threads", 0, "IO thread count (0 = single-threaded)")
	flag.Parse()

	loop, err := reactor.NewEventLoop()
	if err != nil {
		log.Fatalf("httpserver: %v", err)
	}

	server, err := reactorhttp.NewServer(loop, "httpserver", *addr, reactor.WithThreadNum(*threads))
	if err != nil {
		log.Fatalf("httpserver: %v", err)
	}
	server.SetHandler(handle)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		loop.Quit()
	}()

	if err := server.Start(nil); err != nil {
		log.Fatalf("httpserver: %v", err)
	}
	log.Printf("httpserver: listening on %s", *addr)
	if err := loop.Run(); err != nil {
		log.Fatalf("httpserver: %v", err)
	}
}
