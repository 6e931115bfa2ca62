package main

import (
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"daebak/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	timeout := cli.DurationP("timeout", "t", 2*time.Minute, "How long to wait for the daemon")
	cli.Parse()

	cmd := ipc.CmdListen
	if cli.NArg() > 0 {
		cmd = cli.Arg(0)
	}

	reply, err := ipc.SendCommand(*socket, cmd, *timeout)
	if err != nil {
		fmt.Println("daebak-daemon not running:", err)
		os.Exit(1)
	}
	if !reply.OK {
		fmt.Printf("%s failed: %s\n", cmd, reply.Error)
		os.Exit(1)
	}

	if reply.Text != "" {
		fmt.Printf("[%s] %s\n", reply.State, reply.Text)
	} else {
		fmt.Println(reply.State)
	}
}
