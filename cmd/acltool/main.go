// acltool brings up an HCI controller and exercises its ACL data path.
// Meant for bench work against real controllers or an h4 test server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/litebt/bthost"
	"github.com/litebt/bthost/hci"
)

func main() {
	app := cli.NewApp()
	app.Name = "acltool"
	app.Usage = "inspect and stress the HCI ACL data channel"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "device, d",
			Value: -1,
			Usage: "hci device index (hci socket transport)",
		},
		cli.StringFlag{
			Name:  "h4-uart",
			Usage: "serial port of an h4 controller",
		},
		cli.StringFlag{
			Name:  "h4-socket",
			Usage: "address of an h4 controller served over tcp",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "trace level logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "info",
			Usage:  "print the controller's ACL buffer geometry",
			Action: runInfo,
		},
		{
			Name:   "snapshot",
			Usage:  "dump the data channel state as JSON",
			Action: runSnapshot,
		},
		{
			Name:   "stress",
			Usage:  "register a link and pump packets through the ACL path",
			Flags: []cli.Flag{
				cli.UintFlag{Name: "handle", Value: 0x40, Usage: "connection handle"},
				cli.IntFlag{Name: "count, n", Value: 64, Usage: "packets to enqueue"},
				cli.IntFlag{Name: "size, s", Value: 27, Usage: "payload size in bytes"},
				cli.BoolFlag{Name: "le", Usage: "treat the link as LE instead of classic"},
				cli.DurationFlag{Name: "wait", Value: 2 * time.Second, Usage: "time to wait for completions"},
			},
			Action: runStress,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bringUp(c *cli.Context) (*hci.HCI, error) {
	if c.GlobalBool("verbose") {
		bthost.SetLogLevelMax()
	}

	var opt bthost.Option
	switch {
	case c.GlobalString("h4-uart") != "":
		opt = bthost.OptTransportH4Uart(c.GlobalString("h4-uart"))
	case c.GlobalString("h4-socket") != "":
		opt = bthost.OptTransportH4Socket(c.GlobalString("h4-socket"), 3*time.Second)
	default:
		opt = bthost.OptTransportHCISocket(c.GlobalInt("device"))
	}

	h, err := hci.NewHCI(opt, bthost.OptErrorHandler(func(e error) {
		fmt.Fprintln(os.Stderr, "hci error:", e)
	}))
	if err != nil {
		return nil, err
	}
	if err := h.Init(); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func runInfo(c *cli.Context) error {
	h, err := bringUp(c)
	if err != nil {
		return err
	}
	defer h.Close()

	for _, t := range []hci.LinkType{hci.LinkClassic, hci.LinkLowEnergy} {
		if info, ok := h.ACL().GetBufferInfo(t); ok {
			fmt.Printf("%-8s mtu %4d, %3d packets\n", t, info.MTU, info.MaxPackets)
		}
	}
	return nil
}

func runSnapshot(c *cli.Context) error {
	h, err := bringUp(c)
	if err != nil {
		return err
	}
	defer h.Close()

	b, err := h.ACL().Snapshot().JSON()
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func runStress(c *cli.Context) error {
	h, err := bringUp(c)
	if err != nil {
		return err
	}
	defer h.Close()

	acl := h.ACL()
	handle := uint16(c.Uint("handle"))
	lt := hci.LinkClassic
	if c.Bool("le") {
		lt = hci.LinkLowEnergy
	}

	info, ok := acl.GetBufferInfo(lt)
	if !ok {
		return fmt.Errorf("no buffer info for %v links", lt)
	}
	size := c.Int("size")
	if size > info.MTU {
		return fmt.Errorf("payload %d exceeds mtu %d", size, info.MTU)
	}

	acl.RegisterLink(handle, lt)
	defer func() {
		acl.UnregisterLink(handle)
		acl.ClearControllerPacketCount(handle)
	}()

	payload := make([]byte, size)
	accepted := 0
	for i := 0; i < c.Int("count"); i++ {
		if acl.SendPacket(payload, handle, hci.PriorityLow) {
			accepted++
		}
	}
	fmt.Printf("enqueued %d/%d packets\n", accepted, c.Int("count"))

	time.Sleep(c.Duration("wait"))

	b, err := acl.Snapshot().JSON()
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
