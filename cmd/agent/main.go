// Command agent dials the rendezvous, completes the handshake, and
// bridges every signalled flow to a configured backend service.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/op/go-logging"
	"github.com/urfave/cli"

	"github.com/kryptco/kr-tunnel/internal/cipherstream"
	"github.com/kryptco/kr-tunnel/internal/config"
	krlog "github.com/kryptco/kr-tunnel/internal/logging"
	"github.com/kryptco/kr-tunnel/internal/session"
	"github.com/kryptco/kr-tunnel/internal/version"
	"github.com/kryptco/kr-tunnel/internal/wire"
)

func main() {
	app := cli.NewApp()
	app.Name = "agent"
	app.Usage = "dials a rendezvous and bridges flows to a local backend"
	app.Version = version.Current.String()
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:     "server",
			Usage:    "rendezvous address to dial",
			Required: true,
		},
		cli.StringFlag{
			Name:     "backend",
			Usage:    "backend TCP address to dial per flow",
			Required: true,
		},
		cli.StringFlag{
			Name:  "domain",
			Usage: "logical domain announced in ClientHello",
		},
		cli.StringFlag{
			Name:  "path",
			Usage: "logical path announced in ClientHello",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := krlog.New("agent", logging.NOTICE)

	keyNonce, err := config.LoadKeyNonce()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	server := c.String("server")
	backend := c.String("backend")
	domain := c.String("domain")
	path := c.String("path")

	log.Notice("dialing rendezvous at ", server)
	controlConn, err := net.Dial("tcp", server)
	if err != nil {
		return fmt.Errorf("dialing rendezvous: %w", err)
	}
	defer controlConn.Close()

	enc, err := cipherstream.NewEncryptor(controlConn, keyNonce.Key, keyNonce.Nonce)
	if err != nil {
		return err
	}
	dec, err := cipherstream.NewDecryptor(controlConn, keyNonce.Key, keyNonce.Nonce)
	if err != nil {
		return err
	}
	codec := wire.NewCodec(enc, dec)

	id, err := session.ClientHandshake(codec, domain, path)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	log.Notice("handshake complete: domain=", id.Domain, " path=", id.Path)

	s := session.New(codec, log)
	err = session.RunAgent(s, func() (net.Conn, error) {
		return net.Dial("tcp", backend)
	})
	if err != nil {
		log.Error("session ended with error: ", err)
		return err
	}
	log.Notice("session ended cleanly")
	return nil
}
