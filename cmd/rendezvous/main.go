// Command rendezvous is the publicly reachable half of the tunnel: it
// accepts one control connection from an agent, binds a fresh external
// listener, and multiplexes external TCP clients into the control
// channel.
package main

import (
	"fmt"
	"net"
	"os"

	uuid "github.com/satori/go.uuid"
	"github.com/urfave/cli"
	"github.com/op/go-logging"

	"github.com/kryptco/kr-tunnel/internal/cipherstream"
	"github.com/kryptco/kr-tunnel/internal/config"
	krlog "github.com/kryptco/kr-tunnel/internal/logging"
	"github.com/kryptco/kr-tunnel/internal/notifier"
	"github.com/kryptco/kr-tunnel/internal/session"
	"github.com/kryptco/kr-tunnel/internal/version"
	"github.com/kryptco/kr-tunnel/internal/wire"
)

func main() {
	app := cli.NewApp()
	app.Name = "rendezvous"
	app.Usage = "publicly reachable endpoint for the tunnel multiplexer"
	app.Version = version.Current.String()
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "bind",
			Value: "0.0.0.0:8000",
			Usage: "listen address for the control channel",
		},
		cli.StringFlag{
			Name:  "callback",
			Usage: "optional control-plane callback URL",
		},
		cli.StringFlag{
			Name:  "sns-topic-arn",
			Usage: "optional SNS topic ARN to additionally fan lifecycle events out to",
		},
		cli.StringFlag{
			Name:  "aws-region",
			Value: "us-east-1",
			Usage: "AWS region for --sns-topic-arn",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log := krlog.New("rendezvous", logging.NOTICE)

	keyNonce, err := config.LoadKeyNonce()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	n, err := buildNotifier(c, log)
	if err != nil {
		return err
	}

	controlListener, err := net.Listen("tcp", c.String("bind"))
	if err != nil {
		return fmt.Errorf("binding control listener: %w", err)
	}
	defer controlListener.Close()
	log.Notice("listening for control connection on ", c.String("bind"))

	controlConn, err := controlListener.Accept()
	if err != nil {
		return fmt.Errorf("accepting control connection: %w", err)
	}
	defer controlConn.Close()
	log.Notice("control connection accepted from ", controlConn.RemoteAddr())

	enc, err := cipherstream.NewEncryptor(controlConn, keyNonce.Key, keyNonce.Nonce)
	if err != nil {
		return err
	}
	dec, err := cipherstream.NewDecryptor(controlConn, keyNonce.Key, keyNonce.Nonce)
	if err != nil {
		return err
	}
	codec := wire.NewCodec(enc, dec)

	id, err := session.ServerHandshake(codec)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	externalListener, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("binding external listener: %w", err)
	}
	defer externalListener.Close()

	connUID := newConnUID()
	port := uint16(externalListener.Addr().(*net.TCPAddr).Port)
	event := notifier.Event{ConnID: connUID, Domain: id.Domain, Path: id.Path, Port: port}

	n.NotifyNewConnection(event)
	defer n.NotifyShutdown(event)

	if err := session.ServerReplyHello(codec, id); err != nil {
		return fmt.Errorf("handshake: sending ServerHello: %w", err)
	}

	log.Notice("tunnel ", connUID, " ready: domain=", id.Domain, " path=", id.Path, " external_port=", port)

	s := session.New(codec, log)
	err = session.RunRendezvous(s, externalListener, session.RendezvousHooks{
		OnFlowOpened: func(flowID uint32) {
			log.Debug("flow ", flowID, " opened")
		},
	})
	if err != nil {
		log.Error("session ended with error: ", err)
		return err
	}
	log.Notice("session ended cleanly")
	return nil
}

func buildNotifier(c *cli.Context, log *logging.Logger) (*notifier.Notifier, error) {
	var publisher notifier.SNSPublisher
	topicARN := c.String("sns-topic-arn")
	if topicARN != "" {
		p, err := notifier.NewAWSSNSPublisher(c.String("aws-region"))
		if err != nil {
			return nil, fmt.Errorf("configuring SNS publisher: %w", err)
		}
		publisher = p
	}
	return notifier.New(c.String("callback"), topicARN, publisher, log), nil
}

// newConnUID generates the "conn-<32hex>" identifier reported to the
// control plane.
func newConnUID() string {
	id := uuid.NewV4()
	return "conn-" + stripDashes(id.String())
}

func stripDashes(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r != '-' {
			out = append(out, byte(r))
		}
	}
	return string(out)
}
