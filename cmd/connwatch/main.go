// connwatch dials a connevent.Server's Unix-domain socket and prints every
// connection lifecycle event it receives, one JSON line at a time. It is
// the rewritten counterpart of the teacher's
// cmd/example-eventsocket-client, which did the same "dial unix socket,
// print JSON lines" job for TCP flow open/close events instead of xsocket
// connection lifecycle events.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/m-lab/go/rtx"

	"github.com/srtkit/xtransmit/connevent"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func main() {
	socketPath := flag.String("socket", "/tmp/xtransmit-connevent.sock", "connevent Unix-domain socket path to subscribe to")
	flag.Parse()

	conn, err := connevent.Subscribe(*socketPath)
	rtx.Must(err, "connwatch: could not subscribe to %q", *socketPath)
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("connwatch: read: %v", err)
	}
	os.Exit(0)
}
